// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tool

import (
	"sort"
	"strings"

	"golang.org/x/mod/semver"
)

// canonicalVersion returns the semver form of v ("1.2.0" becomes "v1.2.0")
// and whether v parses as a semantic version at all.
func canonicalVersion(v string) (string, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", false
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return "", false
	}
	return semver.Canonical(v), true
}

// compareVersions orders semantic versions descending, then everything
// unparseable in ascending string order. Equal semantic versions with
// different spellings fall back to string order so sorting is total.
func compareVersions(a, b string) int {
	ca, okA := canonicalVersion(a)
	cb, okB := canonicalVersion(b)
	switch {
	case okA && okB:
		if c := semver.Compare(cb, ca); c != 0 {
			return c
		}
	case okA:
		return -1
	case okB:
		return 1
	}
	return strings.Compare(a, b)
}

// sortVersions sorts newest first.
func sortVersions(versions []string) {
	sort.SliceStable(versions, func(i, j int) bool {
		return compareVersions(versions[i], versions[j]) < 0
	})
}

// latestVersion returns the highest semantic version, or "" when none of
// versions parses.
func latestVersion(versions []string) string {
	var latest string
	for _, v := range versions {
		if _, ok := canonicalVersion(v); !ok {
			continue
		}
		if latest == "" || compareVersions(v, latest) < 0 {
			latest = v
		}
	}
	return latest
}
