/*
Copyright © 2018 the CarbSea authors.
This file is part of CarbSea.

CarbSea is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

CarbSea is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with CarbSea.  If not, see <http://www.gnu.org/licenses/>.
*/

package carbseautil

import (
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
)

// maybeDownload checks if path is a local file. If it isn't, and it is
// an http or https URL, maybeDownload downloads it to a temporary
// directory, retrying with exponential backoff on temporary failures,
// and returns the location of the downloaded copy. Otherwise, the path
// is returned unchanged. c is a channel across which status messages
// are sent.
func maybeDownload(path string, c chan string) string {
	// Check if this is a local file. If it is, do nothing.
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return path
	}
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		return path
	}

	c <- fmt.Sprintf("Downloading %s...\n", path)
	dir, err := ioutil.TempDir("", "carbsea")
	if err != nil {
		panic(fmt.Errorf("carbsea: failed to create temporary download directory: %v", err))
	}
	dest := filepath.Join(dir, filepath.Base(path))

	err = backoff.RetryNotify(
		func() error {
			w, err := os.Create(dest)
			if err != nil {
				return backoff.Permanent(err)
			}
			defer w.Close()
			resp, err := http.Get(path)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				err := fmt.Errorf("downloading %s: %s", path, resp.Status)
				if resp.StatusCode >= 400 && resp.StatusCode < 500 {
					// Client errors won't go away by retrying.
					return backoff.Permanent(err)
				}
				return err
			}
			_, err = io.Copy(w, resp.Body)
			return err
		},
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3),
		func(err error, d time.Duration) {
			c <- fmt.Sprintf("%v: retrying in %v\n", err, d)
		},
	)
	if err != nil {
		c <- err.Error()
		return path
	}
	return dest
}
