/*
Copyright 2024 Blnk Finance Authors.

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

package remote

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// Cursor marks how far a delta sync has progressed. It is opaque to
// everything outside this package and is persisted as JSON.
//
// Since is the modified-after watermark; a nil Since means a full sync.
// Page, RunStartedAt and Run are only meaningful while a run is mid-way.
// Run identifies the job run that wrote the checkpoint.
type Cursor struct {
	Since        *time.Time `json:"since,omitempty"`
	Page         int        `json:"page,omitempty"`
	RunStartedAt time.Time  `json:"run_started_at,omitempty"`
	Run          string     `json:"run,omitempty"`
}

// ParseCursor decodes a stored cursor. An empty string is a fresh cursor.
func ParseCursor(raw string) (Cursor, error) {
	var c Cursor
	if raw == "" {
		return Cursor{Page: 1}, nil
	}
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return Cursor{}, errors.Wrap(err, "invalid sync cursor")
	}
	if c.Page < 1 {
		c.Page = 1
	}
	return c, nil
}

// Encode serializes the cursor for storage.
func (c Cursor) Encode() string {
	b, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return string(b)
}

// InProgress reports whether the cursor points into the middle of a run.
func (c Cursor) InProgress() bool {
	return c.Page > 1
}

// ResumesFullSync reports whether the cursor is a checkpoint left mid-way
// by the full sync run identified by run.
func (c Cursor) ResumesFullSync(run string) bool {
	return run != "" && c.Since == nil && c.InProgress() && c.Run == run
}
