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

// Package secret implements an agent to read and reload the secrets.
package secret

import (
	"bytes"
	"fmt"
	"os"
	"sync"

	"github.com/myk-org/github-webhook-server-sub001/pkg/secretutil"
)

var agent = &Agent{
	secretsMap: map[string]*reloader{},
}

// Add registers the paths with the agent, loading each one eagerly and
// starting a reloading goroutine per path. Returns an error if any initial
// load fails.
func Add(paths ...string) error {
	for _, path := range paths {
		r := &reloader{path: path}
		if err := r.start(agent.refreshCensorer); err != nil {
			return fmt.Errorf("failed to load secret %s: %w", path, err)
		}
		agent.setReloader(path, r)
	}
	return nil
}

// GetSecret returns the value of the secret stored in the agent for the path.
func GetSecret(path string) []byte {
	return agent.GetSecret(path)
}

// GetTokenGenerator returns a function that gets the value of a given secret.
func GetTokenGenerator(path string) func() []byte {
	return func() []byte {
		return GetSecret(path)
	}
}

// Censor replaces sensitive parts of the content with a placeholder.
func Censor(content []byte) []byte {
	return agent.Censor(content)
}

// AddWithCensorer points the process-global agent at a shared censorer so
// that everything the agent knows about is also stripped from logs and
// subprocess output.
func AddWithCensorer(censorer *secretutil.ReloadingCensorer, paths ...string) error {
	agent.setCensorer(censorer)
	return Add(paths...)
}

// Agent watches a path and updates a secret value. It implements the
// SecretGetter interface.
type Agent struct {
	sync.RWMutex
	secretsMap map[string]*reloader
	censorer   *secretutil.ReloadingCensorer
}

func (a *Agent) setReloader(path string, r *reloader) {
	a.Lock()
	defer a.Unlock()
	a.secretsMap[path] = r
}

func (a *Agent) setCensorer(censorer *secretutil.ReloadingCensorer) {
	a.Lock()
	defer a.Unlock()
	a.censorer = censorer
}

// GetSecret returns the value of the secret stored in the agent for the path.
func (a *Agent) GetSecret(path string) []byte {
	a.RLock()
	defer a.RUnlock()
	if r, ok := a.secretsMap[path]; ok {
		return r.getRaw()
	}
	return nil
}

// Censor replaces sensitive parts of the content with a placeholder.
func (a *Agent) Censor(content []byte) []byte {
	a.RLock()
	defer a.RUnlock()
	if a.censorer == nil {
		// there's no constructor for an Agent so we can't ensure that everyone
		// is using the synchronized getter here
		return content
	}
	return secretutil.AdaptCensorer(a.censorer)(content)
}

// refreshCensorer hands the full set of loaded secrets to the censorer after
// any one of them changes on disk.
func (a *Agent) refreshCensorer() {
	var secrets [][]byte
	a.RLock()
	for _, r := range a.secretsMap {
		secrets = append(secrets, r.getRaw())
	}
	censorer := a.censorer
	a.RUnlock()
	if censorer != nil {
		censorer.RefreshBytes(secrets...)
	}
}

func loadSingleSecret(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}
	return bytes.TrimSpace(b), nil
}
