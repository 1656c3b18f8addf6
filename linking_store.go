package authfront

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"io"
	"strconv"
	"time"
)

const linkingRecordVersion1 = 1

// linkingAttemptStore persists the LinkingAttempt continuation in ephemeral
// flag storage. The record is written under FlagLinkingFlow; the individual
// linkingEmail/linkingProvider/linkingStartedAt keys are mirrored alongside
// it so each stays independently clearable per the storage contract.
type linkingAttemptStore struct {
	flags FlagStore
}

func newLinkingAttemptStore(flags FlagStore) *linkingAttemptStore {
	return &linkingAttemptStore{flags: flags}
}

// Save persists the attempt. Must complete before any provider redirect is
// issued: the returning callback runs in a fresh page load and this record is
// its only memory of the flow.
func (s *linkingAttemptStore) Save(ctx context.Context, attempt *LinkingAttempt) error {
	encoded, err := encodeLinkingAttempt(attempt)
	if err != nil {
		return err
	}
	if err := s.flags.Set(ctx, FlagLinkingFlow, base64.RawStdEncoding.EncodeToString(encoded), ScopeEphemeral); err != nil {
		return err
	}
	if err := s.flags.Set(ctx, FlagLinkingEmail, attempt.Email, ScopeEphemeral); err != nil {
		return err
	}
	if err := s.flags.Set(ctx, FlagLinkingProvider, attempt.Provider, ScopeEphemeral); err != nil {
		return err
	}
	return s.flags.Set(ctx, FlagLinkingStartedAt,
		strconv.FormatInt(attempt.StartedAt.Unix(), 10), ScopeEphemeral)
}

// Load returns the persisted attempt, or nil when none exists. A corrupt
// record is treated as absent: it cannot be resumed and a fresh flow is the
// only way forward.
func (s *linkingAttemptStore) Load(ctx context.Context) (*LinkingAttempt, error) {
	value, ok, err := s.flags.Get(ctx, FlagLinkingFlow, ScopeEphemeral)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	raw, err := base64.RawStdEncoding.DecodeString(value)
	if err != nil {
		return nil, nil
	}
	attempt, err := decodeLinkingAttempt(raw)
	if err != nil {
		return nil, nil
	}
	return attempt, nil
}

// Clear removes the attempt record and every mirrored linking key.
func (s *linkingAttemptStore) Clear(ctx context.Context) error {
	return s.flags.ClearAll(ctx, linkingFlagPrefix, ScopeEphemeral)
}

func encodeLinkingAttempt(attempt *LinkingAttempt) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(linkingRecordVersion1)

	buf.WriteByte(byte(attempt.Step))
	if err := binary.Write(&buf, binary.BigEndian, attempt.StartedAt.Unix()); err != nil {
		return nil, err
	}

	for _, field := range []string{attempt.ID, attempt.Email, attempt.Provider} {
		if len(field) > 65535 {
			return nil, errors.New("linking attempt field length exceeded")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field))); err != nil {
			return nil, err
		}
		buf.WriteString(field)
	}

	return buf.Bytes(), nil
}

func decodeLinkingAttempt(data []byte) (*LinkingAttempt, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != linkingRecordVersion1 {
		return nil, errors.New("invalid linking attempt version")
	}

	step, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	var startedAt int64
	if err := binary.Read(reader, binary.BigEndian, &startedAt); err != nil {
		return nil, err
	}

	fields := make([]string, 3)
	for i := range fields {
		var length uint16
		if err := binary.Read(reader, binary.BigEndian, &length); err != nil {
			return nil, err
		}
		raw := make([]byte, length)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return nil, err
		}
		fields[i] = string(raw)
	}

	return &LinkingAttempt{
		ID:        fields[0],
		Email:     fields[1],
		Provider:  fields[2],
		Step:      LinkStep(step),
		StartedAt: time.Unix(startedAt, 0).UTC(),
	}, nil
}
