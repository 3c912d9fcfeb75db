// Copyright 2026 The ACN Authors
// SPDX-License-Identifier: Apache-2.0

package acn

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/acn-foundation/acn/lib/codec"
)

func testRecord() *AgentRecord {
	return &AgentRecord{
		ServiceID:     "acn",
		LedgerID:      "fetchai",
		Address:       "fetch1y39e4tec9fll66x2k7wed5qn7zhaneayjm55kk",
		PublicKey:     "03b7e977f498dce004e2614764ff576e17cc6691135497e7bcb5d3441e816ba9e1",
		PeerPublicKey: "02344c3f0e79f56aef8e167a6fea912745f1f770b66b4c5096040c0e8c9e3c68b3",
		Signature:     "c2lnbmF0dXJl",
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		message Message
	}{
		{"register", Message{Register: &Register{Record: testRecord()}}},
		{"lookup request", Message{LookupRequest: &LookupRequest{AgentAddress: "fetch1abc"}}},
		{"lookup response", Message{LookupResponse: &LookupResponse{Record: testRecord()}}},
		{"envelope", Message{Envelope: &EnvelopeMessage{Envelope: []byte("payload"), Record: testRecord()}}},
		{"envelope empty payload", Message{Envelope: &EnvelopeMessage{Envelope: []byte{}}}},
		{"status success", Message{Status: &Status{Code: StatusSuccess}}},
		{"status empty messages", Message{Status: &Status{Code: StatusErrorGeneric, Messages: nil}}},
		{"status with messages", Message{Status: &Status{
			Code:     StatusErrorUnknownAgentAddress,
			Messages: []string{"no such agent"},
		}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := Encode(tc.message)
			if err != nil {
				t.Fatalf("Encode() error: %v", err)
			}
			decoded, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode() error: %v", err)
			}
			if !reflect.DeepEqual(decoded, tc.message) {
				t.Errorf("round trip mismatch:\n got %+v\nwant %+v", decoded, tc.message)
			}
		})
	}
}

func TestEncodeRejectsWrongVariantCount(t *testing.T) {
	if _, err := Encode(Message{}); err == nil {
		t.Error("Encode() accepted empty message")
	}
	both := Message{
		Status:        &Status{Code: StatusSuccess},
		LookupRequest: &LookupRequest{AgentAddress: "fetch1abc"},
	}
	if _, err := Encode(both); err == nil {
		t.Error("Encode() accepted message with two variants")
	}
}

func TestDecodeMalformedBytes(t *testing.T) {
	_, err := Decode([]byte{0xff, 0x00, 0x13})
	if err == nil {
		t.Fatal("Decode() accepted garbage")
	}
	if code := StatusCodeOf(err); code != StatusErrorDecode {
		t.Errorf("status code = %v, want %v", code, StatusErrorDecode)
	}
}

func TestDecodeVersionMismatch(t *testing.T) {
	data, err := codec.Marshal(struct {
		Version string  `cbor:"version"`
		Status  *Status `cbor:"status"`
	}{Version: "99.0.0", Status: &Status{Code: StatusSuccess}})
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	_, err = Decode(data)
	if err == nil {
		t.Fatal("Decode() accepted wrong version")
	}
	if code := StatusCodeOf(err); code != StatusErrorUnsupportedVersion {
		t.Errorf("status code = %v, want %v", code, StatusErrorUnsupportedVersion)
	}
}

func TestDecodeEmptyUnion(t *testing.T) {
	data, err := codec.Marshal(struct {
		Version string `cbor:"version"`
	}{Version: Version})
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	_, err = Decode(data)
	if err == nil {
		t.Fatal("Decode() accepted message with no variant")
	}
	if code := StatusCodeOf(err); code != StatusErrorUnexpectedPayload {
		t.Errorf("status code = %v, want %v", code, StatusErrorUnexpectedPayload)
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	original := &Envelope{
		To:         "fetch1alice",
		Sender:     "fetch1faber",
		ProtocolID: "default",
		Message:    []byte("hello"),
	}
	data, err := original.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	decoded, err := UnmarshalEnvelope(data)
	if err != nil {
		t.Fatalf("UnmarshalEnvelope() error: %v", err)
	}
	if decoded.To != original.To || decoded.Sender != original.Sender ||
		decoded.ProtocolID != original.ProtocolID || !bytes.Equal(decoded.Message, original.Message) {
		t.Errorf("round trip mismatch: got %v, want %v", decoded, original)
	}
}

func TestEnvelopeZeroLengthPayload(t *testing.T) {
	original := &Envelope{To: "fetch1alice", Sender: "fetch1faber", ProtocolID: "default", Message: []byte{}}
	data, err := original.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	decoded, err := UnmarshalEnvelope(data)
	if err != nil {
		t.Fatalf("UnmarshalEnvelope() error: %v", err)
	}
	if len(decoded.Message) != 0 {
		t.Errorf("Message = %v, want empty", decoded.Message)
	}
}

func TestStatusCodeClass(t *testing.T) {
	cases := []struct {
		code StatusCode
		want StatusClass
	}{
		{StatusErrorUnsupportedVersion, ClassProtocol},
		{StatusErrorUnexpectedPayload, ClassProtocol},
		{StatusErrorDecode, ClassProtocol},
		{StatusErrorGeneric, ClassProtocol},
		{StatusErrorWrongAgentAddress, ClassRegistration},
		{StatusErrorWrongPublicKey, ClassRegistration},
		{StatusErrorInvalidProof, ClassRegistration},
		{StatusErrorUnsupportedLedger, ClassRegistration},
		{StatusErrorUnknownAgentAddress, ClassRouting},
		{StatusErrorAgentNotReady, ClassRouting},
	}
	for _, tc := range cases {
		if got := tc.code.Class(); got != tc.want {
			t.Errorf("%v.Class() = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestStatusCodeOf(t *testing.T) {
	err := Errorf(StatusErrorAgentNotReady, "bootstrap connection lost")
	if code := StatusCodeOf(err); code != StatusErrorAgentNotReady {
		t.Errorf("StatusCodeOf() = %v, want %v", code, StatusErrorAgentNotReady)
	}
	if code := StatusCodeOf(errors.New("plain")); code != StatusErrorGeneric {
		t.Errorf("StatusCodeOf(plain) = %v, want %v", code, StatusErrorGeneric)
	}
}
