// Copyright 2026 The ACN Authors
// SPDX-License-Identifier: Apache-2.0

package acn

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/acn-foundation/acn/lib/clock"
)

// SendMessage encodes m and writes it as one frame.
func SendMessage(pipe Pipe, m Message) error {
	data, err := Encode(m)
	if err != nil {
		return err
	}
	return pipe.Write(data)
}

// ReadMessage reads one frame and decodes it. Decode failures carry a
// status code; see Decode.
func ReadMessage(pipe Pipe) (Message, error) {
	data, err := pipe.Read()
	if err != nil {
		return Message{}, err
	}
	return Decode(data)
}

// SendSuccess acknowledges the previous message with StatusSuccess.
func SendSuccess(pipe Pipe) error {
	return SendMessage(pipe, Message{Status: &Status{Code: StatusSuccess}})
}

// SendError acknowledges the previous message with an error status.
func SendError(pipe Pipe, code StatusCode, message string) error {
	return SendMessage(pipe, Message{Status: &Status{Code: code, Messages: []string{message}}})
}

// ReadStatus reads one message and requires it to be a Status.
func ReadStatus(pipe Pipe) (*Status, error) {
	m, err := ReadMessage(pipe)
	if err != nil {
		return nil, err
	}
	if m.Status == nil {
		return nil, Errorf(StatusErrorUnexpectedPayload, "expected status, got %s", describe(m))
	}
	return m.Status, nil
}

// AwaitStatus receives an acknowledgement from ch within timeout.
func AwaitStatus(c clock.Clock, ch <-chan *Status, timeout time.Duration) (*Status, error) {
	select {
	case status := <-ch:
		return status, nil
	case <-c.After(timeout):
		return nil, errors.New("acn: acknowledgement timeout")
	}
}

// ReadRegister reads the registration handshake frame. On a decode or
// payload failure it reports the mapped error status to the
// counterparty (best effort) before returning; the caller is expected
// to close the connection, since a broken handshake has no recoverable
// continuation.
func ReadRegister(pipe Pipe) (*AgentRecord, error) {
	m, err := ReadMessage(pipe)
	if err != nil {
		var coded *Error
		if errors.As(err, &coded) {
			_ = SendError(pipe, coded.Code, coded.Err.Error())
		}
		return nil, err
	}
	if m.Register == nil {
		err := Errorf(StatusErrorUnexpectedPayload, "expected register, got %s", describe(m))
		_ = SendError(pipe, StatusErrorUnexpectedPayload, err.Err.Error())
		return nil, err
	}
	if m.Register.Record == nil {
		err := NewError(StatusErrorUnexpectedPayload, ErrNoRecord)
		_ = SendError(pipe, StatusErrorUnexpectedPayload, err.Err.Error())
		return nil, err
	}
	return m.Register.Record, nil
}

// SendRegister performs the client side of the registration handshake:
// send the record, await the status. A non-success status is returned
// as an *Error carrying the remote code.
func SendRegister(pipe Pipe, record *AgentRecord) error {
	if err := SendMessage(pipe, Message{Register: &Register{Record: record}}); err != nil {
		return fmt.Errorf("acn: sending registration: %w", err)
	}
	status, err := ReadStatus(pipe)
	if err != nil {
		return fmt.Errorf("acn: reading registration status: %w", err)
	}
	if status.Code != StatusSuccess {
		return Errorf(status.Code, "registration refused: %s", strings.Join(status.Messages, "; "))
	}
	return nil
}

// SendEnvelope writes one envelope message, optionally attaching the
// sender's record for proof-of-representation at the far end.
func SendEnvelope(pipe Pipe, envelopeBytes []byte, record *AgentRecord) error {
	return SendMessage(pipe, Message{
		Envelope: &EnvelopeMessage{Envelope: envelopeBytes, Record: record},
	})
}

// SendLookupRequest asks the counterparty to resolve address.
func SendLookupRequest(pipe Pipe, address string) error {
	return SendMessage(pipe, Message{LookupRequest: &LookupRequest{AgentAddress: address}})
}

// ReadLookupResponse reads the reply to a lookup request: either a
// LookupResponse with the record or an error Status, which is returned
// as an *Error carrying the remote code.
func ReadLookupResponse(pipe Pipe) (*AgentRecord, error) {
	m, err := ReadMessage(pipe)
	if err != nil {
		return nil, err
	}
	switch {
	case m.LookupResponse != nil:
		if m.LookupResponse.Record == nil {
			return nil, NewError(StatusErrorUnexpectedPayload, ErrNoRecord)
		}
		return m.LookupResponse.Record, nil
	case m.Status != nil:
		return nil, Errorf(m.Status.Code, "lookup failed: %s", strings.Join(m.Status.Messages, "; "))
	default:
		return nil, Errorf(StatusErrorUnexpectedPayload, "expected lookup response, got %s", describe(m))
	}
}

// Lookup performs a full lookup exchange over pipe.
func Lookup(pipe Pipe, address string) (*AgentRecord, error) {
	if err := SendLookupRequest(pipe, address); err != nil {
		return nil, fmt.Errorf("acn: sending lookup request: %w", err)
	}
	return ReadLookupResponse(pipe)
}

// describe names the variant held by m for error messages.
func describe(m Message) string {
	switch {
	case m.Register != nil:
		return "register"
	case m.LookupRequest != nil:
		return "lookup request"
	case m.LookupResponse != nil:
		return "lookup response"
	case m.Envelope != nil:
		return "envelope"
	case m.Status != nil:
		return "status"
	default:
		return "empty message"
	}
}
