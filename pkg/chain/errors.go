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

package chain

import (
	"errors"
	"fmt"
)

// GenerationError is returned when a model call fails. Stage is "route",
// "generate" or "stream".
type GenerationError struct {
	Stage string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("[chain:%s] generation failed: %v", e.Stage, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// apologyPrefix leads the answer that replaces a failed generation.
const apologyPrefix = "죄송합니다. 답변 생성 중 오류가 발생했습니다: "

// Apology returns the user-facing message for a failed generation.
func Apology(err error) string {
	var genErr *GenerationError
	if errors.As(err, &genErr) && genErr.Err != nil {
		err = genErr.Err
	}
	return apologyPrefix + err.Error()
}
