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

package main

import (
	"bytes"
	"os"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/myk-org/github-webhook-server-sub001/pkg/phony"
)

var (
	address    = flag.String("address", "http://localhost:5000/webhook_server", "URL of the webhook endpoint to deliver to.")
	hmac       = flag.String("hmac", "abcde12345", "Key the delivery is signed with; must match the server's webhook-secret.")
	hmacFile   = flag.String("hmac-file", "", "Read the signing key from this file instead of --hmac.")
	event      = flag.String("event", "ping", "Value for the X-GitHub-Event header, e.g. pull_request.")
	payload    = flag.String("payload", "", "JSON file to deliver; an empty body of \"{}\" is sent when unset.")
	deliveryID = flag.String("delivery", "", "X-GitHub-Delivery GUID; generated when unset.")
)

func main() {
	flag.Parse()

	body := []byte("{}")
	if *payload != "" {
		d, err := os.ReadFile(*payload)
		if err != nil {
			logrus.WithError(err).Fatal("Could not read payload file.")
		}
		body = d
	}

	key := []byte(*hmac)
	if *hmacFile != "" {
		k, err := os.ReadFile(*hmacFile)
		if err != nil {
			logrus.WithError(err).Fatal("Could not read signing key file.")
		}
		key = bytes.TrimSpace(k)
	}

	id := *deliveryID
	if id == "" {
		id = uuid.NewString()
	}

	answer, err := phony.SendHook(*address, *event, id, body, key)
	if err != nil {
		logrus.WithError(err).WithField("delivery", id).Error("Could not deliver hook.")
		os.Exit(1)
	}
	logrus.WithFields(logrus.Fields{"delivery": id, "response": answer}).Info("Hook delivered.")
}
