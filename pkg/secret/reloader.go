/*
Copyright 2025 The GitHub Webhook Server Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package secret

import (
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	pollInterval = 1 * time.Second

	// A rewrite that lands within the same second as the previous one can
	// keep the old mtime, so after this many quiet polls the next read
	// skips the stat short-circuit entirely.
	staleAfterPolls = 600
)

// reloader holds one secret file and keeps its value fresh.
type reloader struct {
	lock     sync.RWMutex
	path     string
	rawValue []byte
}

func (r *reloader) start(reloadCensor func()) error {
	raw, err := loadSingleSecret(r.path)
	if err != nil {
		return err
	}
	r.swap(raw, reloadCensor)
	go r.watch(reloadCensor)
	return nil
}

// swap publishes a new value and lets the censorer pick it up.
func (r *reloader) swap(raw []byte, reloadCensor func()) {
	r.lock.Lock()
	r.rawValue = raw
	r.lock.Unlock()
	reloadCensor()
}

// watch polls the file once a second and swaps the value in whenever the
// mod time moves forward.
func (r *reloader) watch(reloadCensor func()) {
	logger := logrus.WithField("secret-path", r.path)
	var lastMod time.Time
	quiet := 0
	ticker := time.NewTicker(pollInterval)
	for range ticker.C {
		if quiet < staleAfterPolls {
			stat, err := os.Stat(r.path)
			if err != nil {
				logger.WithError(err).Error("Could not stat secret file.")
				continue
			}
			if !stat.ModTime().After(lastMod) {
				quiet++
				continue
			}
			lastMod = stat.ModTime()
		}
		raw, err := loadSingleSecret(r.path)
		if err != nil {
			logger.WithError(err).Error("Could not reload secret file.")
			continue
		}
		r.swap(raw, reloadCensor)
		quiet = 0
	}
}

func (r *reloader) getRaw() []byte {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.rawValue
}
