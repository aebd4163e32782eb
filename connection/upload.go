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
	"bytes"
	"errors"
	"io"
	"net/textproto"
	"os"
)

// DefaultSpoolMemory is the size an upload may reach before it is moved to disk.
const DefaultSpoolMemory = 1 << 20

// SpooledFile buffers writes in memory until they exceed a threshold and then
// continues in a temporary file.
type SpooledFile struct {
	maxMemory int64
	buf       bytes.Buffer
	file      *os.File
	reader    io.ReadSeeker
	size      int64
	closed    bool
}

// NewSpooledFile creates a spooled file keeping up to maxMemory bytes in memory.
func NewSpooledFile(maxMemory int64) *SpooledFile {
	if maxMemory <= 0 {
		maxMemory = DefaultSpoolMemory
	}
	return &SpooledFile{maxMemory: maxMemory}
}

// Write appends p. Writing after the first Read or Seek is not supported.
func (f *SpooledFile) Write(p []byte) (int, error) {
	if f.closed {
		return 0, os.ErrClosed
	}
	if f.reader != nil {
		return 0, errors.New("spooled file is being read")
	}
	if f.file == nil && int64(f.buf.Len()+len(p)) > f.maxMemory {
		if err := f.rollover(); err != nil {
			return 0, err
		}
	}
	var (
		n   int
		err error
	)
	if f.file != nil {
		n, err = f.file.Write(p)
	} else {
		n, err = f.buf.Write(p)
	}
	f.size += int64(n)
	return n, err
}

func (f *SpooledFile) rollover() error {
	tmp, err := os.CreateTemp("", "keel-upload-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(f.buf.Bytes()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	f.buf.Reset()
	f.file = tmp
	return nil
}

func (f *SpooledFile) readSeeker() (io.ReadSeeker, error) {
	if f.closed {
		return nil, os.ErrClosed
	}
	if f.reader == nil {
		if f.file != nil {
			if _, err := f.file.Seek(0, io.SeekStart); err != nil {
				return nil, err
			}
			f.reader = f.file
		} else {
			f.reader = bytes.NewReader(f.buf.Bytes())
		}
	}
	return f.reader, nil
}

// Read reads from the start of the written content.
func (f *SpooledFile) Read(p []byte) (int, error) {
	rs, err := f.readSeeker()
	if err != nil {
		return 0, err
	}
	return rs.Read(p)
}

// Seek implements io.Seeker over the written content.
func (f *SpooledFile) Seek(offset int64, whence int) (int64, error) {
	rs, err := f.readSeeker()
	if err != nil {
		return 0, err
	}
	return rs.Seek(offset, whence)
}

// Size returns the number of bytes written.
func (f *SpooledFile) Size() int64 {
	return f.size
}

// RolledOver reports whether the content lives in a temporary file.
func (f *SpooledFile) RolledOver() bool {
	return f.file != nil
}

// Close releases the memory buffer and removes the temporary file.
func (f *SpooledFile) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	f.buf = bytes.Buffer{}
	if f.file == nil {
		return nil
	}
	name := f.file.Name()
	err := f.file.Close()
	if rmErr := os.Remove(name); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		err = errors.Join(err, rmErr)
	}
	return err
}

// UploadFile is a file part of a multipart request.
type UploadFile struct {
	// Filename is the client supplied file name.
	Filename string

	// Headers are the part headers.
	Headers textproto.MIMEHeader

	*SpooledFile
}

// ContentType returns the part Content-Type.
func (u *UploadFile) ContentType() string {
	return u.Headers.Get("Content-Type")
}

// ReadAll returns the whole content.
func (u *UploadFile) ReadAll() ([]byte, error) {
	if _, err := u.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return io.ReadAll(u)
}
