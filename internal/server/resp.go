// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
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

package server

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/etalazz/rkv/internal/executor"
)

// errProtocol marks a malformed request the connection layer cannot
// recover from; the caller should close the connection rather than try
// to resynchronize on the wire.
type errProtocol struct{ msg string }

func (e errProtocol) Error() string { return e.msg }

// readCommand parses one RESP request off r: a "*N\r\n" array of "$len\r\n"
// bulk strings, the wire shape every real RESP client (redis-cli,
// go-redis, etc.) sends. internal/executor deliberately leaves this
// framing to the connection layer (see its package doc), so it lives
// here rather than inside the command executor.
func readCommand(r *bufio.Reader) (executor.Command, error) {
	line, err := readLine(r)
	if err != nil {
		return executor.Command{}, err
	}
	if len(line) == 0 || line[0] != '*' {
		return executor.Command{}, errProtocol{"expected '*' to start a request array"}
	}
	n, err := strconv.Atoi(string(line[1:]))
	if err != nil || n <= 0 {
		return executor.Command{}, errProtocol{"invalid array length"}
	}

	args := make([]string, 0, n)
	for i := 0; i < n; i++ {
		bulk, err := readBulkString(r)
		if err != nil {
			return executor.Command{}, err
		}
		args = append(args, bulk)
	}

	cmd := executor.NewCommand(args[0], args[1:]...)
	return cmd, nil
}

func readBulkString(r *bufio.Reader) (string, error) {
	line, err := readLine(r)
	if err != nil {
		return "", err
	}
	if len(line) == 0 || line[0] != '$' {
		return "", errProtocol{"expected '$' to start a bulk string"}
	}
	n, err := strconv.Atoi(string(line[1:]))
	if err != nil || n < 0 {
		return "", errProtocol{"invalid bulk string length"}
	}

	buf := make([]byte, n+2) // +2 for the trailing \r\n
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf[:n]), nil
}

// readLine reads one CRLF-terminated line, trimming the terminator.
func readLine(r *bufio.Reader) ([]byte, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	if len(line) >= 2 && line[len(line)-2] == '\r' {
		return line[:len(line)-2], nil
	}
	return line[:len(line)-1], nil
}

// writeReply serializes v in RESP form, mirroring RespKind's five
// variants plus RespNil's two shapes (RESP has no single canonical null,
// it differs between bulk-string and array context; callers only ever
// produce a bare Nil() so a bulk-string null is the correct rendering).
func writeReply(w *bufio.Writer, v executor.RespValue) error {
	switch v.Kind {
	case executor.RespNil:
		_, err := w.WriteString("$-1\r\n")
		return err
	case executor.RespSimpleString:
		_, err := fmt.Fprintf(w, "+%s\r\n", v.Str)
		return err
	case executor.RespBulkString:
		_, err := fmt.Fprintf(w, "$%d\r\n%s\r\n", len(v.Str), v.Str)
		return err
	case executor.RespInteger:
		_, err := fmt.Fprintf(w, ":%d\r\n", v.Int)
		return err
	case executor.RespError:
		_, err := fmt.Fprintf(w, "-%s\r\n", v.Err.Error())
		return err
	case executor.RespArray:
		if _, err := fmt.Fprintf(w, "*%d\r\n", len(v.Array)); err != nil {
			return err
		}
		for _, elem := range v.Array {
			if err := writeReply(w, elem); err != nil {
				return err
			}
		}
		return nil
	default:
		return errProtocol{"unknown RespKind"}
	}
}
