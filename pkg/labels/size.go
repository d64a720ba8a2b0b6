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

package labels

import (
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/myk-org/github-webhook-server-sub001/pkg/config"
)

type sizeBucket struct {
	name      string
	color     string
	threshold int
}

// defaultSizeBuckets is the built-in size scale: a PR lands in the first
// bucket its change count falls strictly below, XXL catching the rest.
var defaultSizeBuckets = []sizeBucket{
	{name: "XS", color: staticColors[SizePrefix+"xs"], threshold: 20},
	{name: "S", color: staticColors[SizePrefix+"s"], threshold: 50},
	{name: "M", color: staticColors[SizePrefix+"m"], threshold: 100},
	{name: "L", color: staticColors[SizePrefix+"l"], threshold: 300},
	{name: "XL", color: staticColors[SizePrefix+"xl"], threshold: 500},
	{name: "XXL", color: staticColors[SizePrefix+"xxl"], threshold: 0},
}

var hexColor = regexp.MustCompile(`^[0-9a-fA-F]{6}$`)

// cssColors translates the CSS color names accepted in pr-size-thresholds
// into GitHub's hex form.
var cssColors = map[string]string{
	"black":   "000000",
	"silver":  "c0c0c0",
	"gray":    "808080",
	"grey":    "808080",
	"white":   "ffffff",
	"maroon":  "800000",
	"red":     "ff0000",
	"purple":  "800080",
	"fuchsia": "ff00ff",
	"green":   "008000",
	"lime":    "00ff00",
	"olive":   "808000",
	"yellow":  "ffff00",
	"navy":    "000080",
	"blue":    "0000ff",
	"teal":    "008080",
	"aqua":    "00ffff",
	"orange":  "ffa500",
	"pink":    "ffc0cb",
	"brown":   "a52a2a",
	"gold":    "ffd700",
}

// SizeLabel maps a PR's changed-line count to its size label name and color.
// A per-repo threshold table overrides the default scale; entries with a
// non-positive threshold or an unknown color are dropped with a warning, and
// a table with no valid entries falls back to the defaults.
func SizeLabel(changes int, overrides map[string]config.SizeThreshold, log *logrus.Entry) (string, string) {
	buckets := defaultSizeBuckets
	if custom := customBuckets(overrides, log); len(custom) > 0 {
		buckets = custom
	}
	for _, bucket := range buckets {
		if bucket.threshold > 0 && changes < bucket.threshold {
			return SizePrefix + bucket.name, bucket.color
		}
	}
	last := buckets[len(buckets)-1]
	return SizePrefix + last.name, last.color
}

func customBuckets(overrides map[string]config.SizeThreshold, log *logrus.Entry) []sizeBucket {
	if len(overrides) == 0 {
		return nil
	}
	var buckets []sizeBucket
	for name, entry := range overrides {
		color, ok := resolveColor(entry.Color)
		if entry.Threshold <= 0 || !ok {
			log.Warnf("Dropping invalid size threshold %q: threshold must be positive and color a known name.", name)
			continue
		}
		buckets = append(buckets, sizeBucket{name: name, color: color, threshold: entry.Threshold})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].threshold < buckets[j].threshold })
	return buckets
}

func resolveColor(color string) (string, bool) {
	color = strings.ToLower(strings.TrimPrefix(color, "#"))
	if hexColor.MatchString(color) {
		return color, true
	}
	hex, ok := cssColors[color]
	return hex, ok
}
