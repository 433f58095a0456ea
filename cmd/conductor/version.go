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

package main

import (
	"fmt"
	"runtime/debug"

	"github.com/kadirpekel/conductor"
)

// VersionCmd shows version information.
type VersionCmd struct {
	JSON bool `name:"json" help:"Print as JSON."`
}

func (c *VersionCmd) Run() error {
	info := conductor.GetVersion()
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	if c.JSON {
		return printValue(formatJSON, info)
	}
	fmt.Fprintln(stdout, info.String())
	return nil
}
