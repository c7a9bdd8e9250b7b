/*
Copyright The Meridian Contributors

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

// Package versions contains the version of the meridian release and
// supporting build information
package versions

const (
	// Version is the version of the binary
	Version = "0.4.0"

	// Info is the general product name
	Info = "Meridian Progressive Delivery Controller"
)

var (
	// BuildCommit is the git commit this build originates from,
	// injected at build time
	BuildCommit = "none"

	// BuildDate is the date this build was created, injected at
	// build time
	BuildDate = "unknown"
)
