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

package model

import (
	"context"
	"strings"
)

// EchoLLM returns the prompt as its completion. It stands in for a real
// model during development and in tests.
type EchoLLM struct {
	ModelName string
}

func (e *EchoLLM) Name() string {
	if e.ModelName == "" {
		return "echo"
	}
	return e.ModelName
}

func (e *EchoLLM) Generate(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req == nil {
		return &Response{}, nil
	}
	text := req.Prompt
	if req.System != "" {
		text = req.System + "\n\n" + text
	}
	words := len(strings.Fields(text))
	return &Response{
		Text:  text,
		Usage: &Usage{PromptTokens: words, CompletionTokens: words},
	}, nil
}
