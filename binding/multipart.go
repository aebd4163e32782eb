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

package binding

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"

	"rivaas.dev/keel/connection"
	kerrors "rivaas.dev/keel/errors"
)

// Form holds the parsed fields and files of a form request.
type Form struct {
	Values url.Values
	Files  map[string][]*connection.UploadFile
}

// Close releases every uploaded file.
func (f *Form) Close() error {
	var errs []error
	for _, files := range f.Files {
		for _, file := range files {
			errs = append(errs, file.Close())
		}
	}
	return errors.Join(errs...)
}

// FormLimits bounds multipart parsing.
type FormLimits struct {
	// MaxFileSize is the largest accepted file part in bytes. Zero means no limit.
	MaxFileSize int64

	// SpoolMemory is the in-memory size of a file before it rolls over to disk.
	SpoolMemory int64

	// MaxParts is the maximum number of parts. Zero means no limit.
	MaxParts int
}

// formOf parses the form body of req once; later calls return the cached form.
func formOf(req *connection.Request, mt string, limits FormLimits) (*Form, error) {
	if parsed, ok := req.ParsedBody(); ok {
		if form, ok := parsed.(*Form); ok {
			return form, nil
		}
	}

	var (
		form *Form
		err  error
	)
	switch mt {
	case MediaTypeForm:
		form, err = parseURLEncoded(req)
	case MediaTypeMultipart:
		form, err = parseMultipart(req, limits)
	default:
		return nil, kerrors.NewUnsupportedMediaType(mt)
	}
	if err != nil {
		return nil, err
	}
	req.SetParsedBody(form)
	req.AddCleanup(form.Close)
	return form, nil
}

func parseURLEncoded(req *connection.Request) (*Form, error) {
	data, err := req.Body()
	if err != nil {
		return nil, bodyReadError(err)
	}
	values, err := url.ParseQuery(string(data))
	if err != nil {
		return nil, kerrors.NewBadRequest("Malformed form body")
	}
	return &Form{Values: values, Files: map[string][]*connection.UploadFile{}}, nil
}

func parseMultipart(req *connection.Request, limits FormLimits) (*Form, error) {
	_, params, err := mime.ParseMediaType(req.ContentType())
	if err != nil || params["boundary"] == "" {
		return nil, kerrors.NewBadRequest("Missing boundary in multipart/form-data content type")
	}
	stream, err := req.Stream()
	if err != nil {
		return nil, bodyReadError(err)
	}

	form := &Form{Values: url.Values{}, Files: map[string][]*connection.UploadFile{}}
	reader := multipart.NewReader(stream, params["boundary"])
	parts := 0
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return form, nil
		}
		if err != nil {
			_ = form.Close()
			return nil, bodyReadError(err)
		}
		parts++
		if limits.MaxParts > 0 && parts > limits.MaxParts {
			_ = part.Close()
			_ = form.Close()
			return nil, kerrors.NewBadRequest(fmt.Sprintf("Too many form parts, the limit is %d", limits.MaxParts))
		}
		if err := readPart(form, part, limits); err != nil {
			_ = part.Close()
			_ = form.Close()
			return nil, err
		}
		_ = part.Close()
	}
}

func readPart(form *Form, part *multipart.Part, limits FormLimits) error {
	name := part.FormName()
	if name == "" {
		return nil
	}
	if part.FileName() == "" {
		data, err := io.ReadAll(part)
		if err != nil {
			return bodyReadError(err)
		}
		form.Values.Add(name, string(data))
		return nil
	}

	spool := connection.NewSpooledFile(limits.SpoolMemory)
	upload := &connection.UploadFile{
		Filename:    part.FileName(),
		Headers:     part.Header,
		SpooledFile: spool,
	}
	var src io.Reader = part
	if limits.MaxFileSize > 0 {
		src = io.LimitReader(part, limits.MaxFileSize+1)
	}
	n, err := io.Copy(spool, src)
	if err != nil {
		_ = spool.Close()
		return bodyReadError(err)
	}
	if limits.MaxFileSize > 0 && n > limits.MaxFileSize {
		_ = spool.Close()
		return kerrors.NewHTTPException(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("File %q exceeds the maximum size of %d bytes", part.FileName(), limits.MaxFileSize))
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		_ = spool.Close()
		return err
	}
	form.Files[name] = append(form.Files[name], upload)
	return nil
}

func bodyReadError(err error) error {
	if errors.Is(err, connection.ErrBodyTooLarge) {
		return kerrors.NewHTTPException(http.StatusRequestEntityTooLarge, "Request body too large")
	}
	var exc *kerrors.HTTPException
	if errors.As(err, &exc) {
		return err
	}
	return kerrors.NewBadRequest("Malformed request body: " + err.Error())
}
