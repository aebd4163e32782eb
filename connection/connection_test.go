// Copyright 2025 The Rivaas Authors
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

package connection

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequest_BodyIsCached(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodPost, "/items?q=1&q=2", strings.NewReader(`{"a":1}`))
	req := NewRequest(r, 0)

	first, err := req.Body()
	require.NoError(t, err)
	second, err := req.Body()
	require.NoError(t, err)

	assert.JSONEq(t, `{"a":1}`, string(first))
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"1", "2"}, req.Query()["q"])

	_, err = req.Stream()
	require.Error(t, err)
}

func TestRequest_BodyLimit(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789"))
	req := NewRequest(r, 4)

	_, err := req.Body()
	require.ErrorIs(t, err, ErrBodyTooLarge)
}

func TestRequest_Cookies(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Add("Cookie", "session=abc; theme=dark; session=shadow")
	req := NewRequest(r, 0)

	assert.Equal(t, map[string]string{"session": "abc", "theme": "dark"}, req.Cookies())
}

func TestRequest_CleanupsRunInReverse(t *testing.T) {
	t.Parallel()

	req := NewRequest(httptest.NewRequest(http.MethodGet, "/", nil), 0)

	var order []int
	req.AddCleanup(func() error { order = append(order, 1); return nil })
	req.AddCleanup(func() error { order = append(order, 2); return errors.New("second failed") })
	req.AddCleanup(func() error { order = append(order, 3); return nil })

	err := req.Close()
	require.EqualError(t, err, "second failed")
	assert.Equal(t, []int{3, 2, 1}, order)

	require.NoError(t, req.Close())
	assert.Len(t, order, 3)
}

func TestState(t *testing.T) {
	t.Parallel()

	s := NewState()
	s.Set("user", "ada")

	v, ok := s.Get("user")
	require.True(t, ok)
	assert.Equal(t, "ada", v)

	all := s.All()
	all["user"] = "mutated"
	v, _ = s.Get("user")
	assert.Equal(t, "ada", v)

	s.Delete("user")
	_, ok = s.Get("user")
	assert.False(t, ok)
}

func TestSpooledFile_InMemory(t *testing.T) {
	t.Parallel()

	f := NewSpooledFile(16)
	_, err := f.Write([]byte("hello"))
	require.NoError(t, err)
	assert.False(t, f.RolledOver())

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	require.NoError(t, f.Close())
}

func TestSpooledFile_Rollover(t *testing.T) {
	t.Parallel()

	f := NewSpooledFile(4)
	_, err := f.Write([]byte("abc"))
	require.NoError(t, err)
	_, err = f.Write([]byte("defgh"))
	require.NoError(t, err)

	assert.True(t, f.RolledOver())
	assert.Equal(t, int64(8), f.Size())

	up := &UploadFile{Filename: "a.txt", SpooledFile: f}
	data, err := up.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "abcdefgh", string(data))

	require.NoError(t, up.Close())
	_, err = up.Read(make([]byte, 1))
	require.Error(t, err)
}
