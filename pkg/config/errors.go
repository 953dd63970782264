// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import "fmt"

// ConfigError reports a configuration document that cannot be used at all.
// It is the only error class allowed to surface from setup calls.
type ConfigError struct {
	Path    string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	where := e.Path
	if where == "" {
		where = "<inline>"
	}
	if e.Err != nil {
		return fmt.Sprintf("[config:%s] %s: %v", where, e.Message, e.Err)
	}
	return fmt.Sprintf("[config:%s] %s", where, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func newConfigError(path, message string, err error) *ConfigError {
	return &ConfigError{Path: path, Message: message, Err: err}
}
