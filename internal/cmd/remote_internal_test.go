// SPDX-FileCopyrightText: 2025 The syzqemuctl Authors
//
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTransferSide(t *testing.T) {
	tests := []struct {
		name     string
		arg      string
		expected transferSide
	}{
		{
			name:     "local relative path",
			arg:      "crash.log",
			expected: transferSide{path: "crash.log"},
		},
		{
			name:     "local absolute path",
			arg:      "/tmp/crash.log",
			expected: transferSide{path: "/tmp/crash.log"},
		},
		{
			name:     "remote path",
			arg:      "fuzzer1:/root/crash.log",
			expected: transferSide{vm: "fuzzer1", path: "/root/crash.log"},
		},
		{
			name:     "remote relative path",
			arg:      "fuzzer1:crash.log",
			expected: transferSide{vm: "fuzzer1", path: "crash.log"},
		},
		{
			name:     "remote path with colon",
			arg:      "fuzzer1:/root/a:b",
			expected: transferSide{vm: "fuzzer1", path: "/root/a:b"},
		},
		{
			name: "path containing slash before colon is local",
			arg:  "dir/with:colon",
			expected: transferSide{
				path: "dir/with:colon",
			},
		},
		{
			name:     "empty name is local",
			arg:      ":/root/file",
			expected: transferSide{path: ":/root/file"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseTransferSide(tt.arg))
		})
	}
}
