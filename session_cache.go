package authfront

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"io"
	"time"
)

const sessionRecordVersion1 = 1

// sessionCache mirrors the current Session into ephemeral flag storage so a
// reload can arm the navigation guard even when the backend is unreachable
// at startup. The mirror is a cache of derived truth: whenever it disagrees
// with the live backend session, the backend wins and the mirror is
// rewritten.
type sessionCache struct {
	flags FlagStore
}

func newSessionCache(flags FlagStore) *sessionCache {
	return &sessionCache{flags: flags}
}

func (c *sessionCache) save(ctx context.Context, session *Session) error {
	encoded, err := encodeSession(session)
	if err != nil {
		return err
	}
	return c.flags.Set(ctx, FlagCachedSession, base64.RawStdEncoding.EncodeToString(encoded), ScopeEphemeral)
}

// load returns the mirrored session, or nil when absent, corrupt, or expired.
func (c *sessionCache) load(ctx context.Context) (*Session, error) {
	value, ok, err := c.flags.Get(ctx, FlagCachedSession, ScopeEphemeral)
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
	session, err := decodeSession(raw)
	if err != nil {
		return nil, nil
	}
	if session.Expired(time.Now()) {
		_ = c.flags.Clear(ctx, FlagCachedSession, ScopeEphemeral)
		return nil, nil
	}
	return session, nil
}

func (c *sessionCache) clear(ctx context.Context) error {
	return c.flags.Clear(ctx, FlagCachedSession, ScopeEphemeral)
}

func encodeSession(session *Session) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(sessionRecordVersion1)

	if err := binary.Write(&buf, binary.BigEndian, session.ExpiresAt.Unix()); err != nil {
		return nil, err
	}

	for _, field := range []string{session.UserID, session.Email, session.AccessToken, session.RefreshToken} {
		if len(field) > 65535 {
			return nil, errors.New("session field length exceeded")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field))); err != nil {
			return nil, err
		}
		buf.WriteString(field)
	}

	return buf.Bytes(), nil
}

func decodeSession(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != sessionRecordVersion1 {
		return nil, errors.New("invalid session record version")
	}

	var expiresAt int64
	if err := binary.Read(reader, binary.BigEndian, &expiresAt); err != nil {
		return nil, err
	}

	fields := make([]string, 4)
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

	return &Session{
		UserID:       fields[0],
		Email:        fields[1],
		AccessToken:  fields[2],
		RefreshToken: fields[3],
		ExpiresAt:    time.Unix(expiresAt, 0).UTC(),
	}, nil
}
