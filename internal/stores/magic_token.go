package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	magicRecordVersionV1 = 1
	magicConsumeRetries  = 4
)

var (
	ErrMagicTokenNotFound    = errors.New("magic token not found")
	ErrMagicTokenExists      = errors.New("magic token already exists")
	ErrMagicRedisUnavailable = errors.New("magic token redis unavailable")
)

// MagicTokenRecord is the stored state of one magic token. The token itself is
// never stored; records are keyed by its SHA-256.
type MagicTokenRecord struct {
	PrincipalID string
	IssuedAt    int64
	ExpiresAt   int64
	Used        bool
	UsedAt      int64
}

type MagicTokenStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewMagicTokenStore(redisClient redis.UniversalClient, prefix string) *MagicTokenStore {
	if prefix == "" {
		prefix = "amt"
	}
	return &MagicTokenStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *MagicTokenStore) key(tokenHash [32]byte) string {
	return s.prefix + ":" + hex.EncodeToString(tokenHash[:])
}

// Save stores a fresh record. The record lives until its expiry whether or not
// it is redeemed.
func (s *MagicTokenStore) Save(ctx context.Context, tokenHash [32]byte, record *MagicTokenRecord, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("magic token ttl must be positive")
	}
	encoded, err := encodeMagicTokenRecord(record)
	if err != nil {
		return err
	}

	ok, err := s.redis.SetNX(ctx, s.key(tokenHash), encoded, ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMagicRedisUnavailable, err)
	}
	if !ok {
		return ErrMagicTokenExists
	}
	return nil
}

// Consume reads the record and flips Used in one optimistic transaction. Unknown,
// expired and already-used tokens all return ErrMagicTokenNotFound.
func (s *MagicTokenStore) Consume(ctx context.Context, tokenHash [32]byte, now time.Time) (*MagicTokenRecord, error) {
	key := s.key(tokenHash)

	for i := 0; i < magicConsumeRetries; i++ {
		var consumed *MagicTokenRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					return ErrMagicTokenNotFound
				}
				return err
			}

			record, err := decodeMagicTokenRecord(data)
			if err != nil {
				return err
			}
			if record.Used {
				return ErrMagicTokenNotFound
			}

			ttl := time.Unix(record.ExpiresAt, 0).Sub(now)
			if ttl <= 0 {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrMagicTokenNotFound
			}

			record.Used = true
			record.UsedAt = now.Unix()
			updated, err := encodeMagicTokenRecord(record)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			if err != nil {
				return err
			}

			consumed = record
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, ErrMagicTokenNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", ErrMagicRedisUnavailable, err)
		}

		return consumed, nil
	}

	return nil, ErrMagicTokenNotFound
}

func encodeMagicTokenRecord(record *MagicTokenRecord) ([]byte, error) {
	if record == nil || record.PrincipalID == "" {
		return nil, errors.New("magic token record requires principal id")
	}
	if len(record.PrincipalID) > 65535 {
		return nil, errors.New("magic token principal id too long")
	}

	var buf bytes.Buffer
	buf.WriteByte(magicRecordVersionV1)
	if record.Used {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	for _, v := range []int64{record.IssuedAt, record.ExpiresAt, record.UsedAt} {
		if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
			return nil, err
		}
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.PrincipalID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.PrincipalID)

	return buf.Bytes(), nil
}

func decodeMagicTokenRecord(data []byte) (*MagicTokenRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != magicRecordVersionV1 {
		return nil, errors.New("invalid magic token record version")
	}

	used, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	record := &MagicTokenRecord{Used: used == 1}

	for _, dst := range []*int64{&record.IssuedAt, &record.ExpiresAt, &record.UsedAt} {
		if err := binary.Read(reader, binary.BigEndian, dst); err != nil {
			return nil, err
		}
	}

	var idLen uint16
	if err := binary.Read(reader, binary.BigEndian, &idLen); err != nil {
		return nil, err
	}
	id := make([]byte, idLen)
	if _, err := io.ReadFull(reader, id); err != nil {
		return nil, err
	}
	record.PrincipalID = string(id)

	return record, nil
}
