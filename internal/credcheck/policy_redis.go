package credcheck

import (
	"context"
	"encoding/hex"
	"encoding/binary"

	"github.com/edirooss/tock-kernel/internal/process"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisPolicy is a CredentialsCheckingPolicy backed by an operator-curated
// allowlist of credential hashes kept in a Redis set, using Redis as the
// durable system of record and keeping no values in RAM.
//
// Acceptance is keyed on the SHA-256 footer's payload hex-encoded; an
// operator admits a process by SADD-ing its hash to <keyPrefix>accepted.
// RSA/SHA-384/SHA-512 footers are walked past (Pass) — this policy only
// judges the SHA-256 credential type.
type RedisPolicy struct {
	log       *zap.Logger
	rdb       *redis.Client
	keyPrefix string
}

func NewRedisPolicy(log *zap.Logger, rdb *redis.Client, keyPrefix string) *RedisPolicy {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisPolicy{log: log.Named("credcheck.redis"), rdb: rdb, keyPrefix: keyPrefix}
}

func (p *RedisPolicy) acceptedSetKey() string { return p.keyPrefix + "accepted" }

// RequiresCredentials rejects any process presenting zero credential
// footers — this policy exists precisely to keep unsigned processes out.
func (p *RedisPolicy) RequiresCredentials() bool { return true }

func (p *RedisPolicy) CheckCredentials(ctx context.Context, proc *process.Process, footer FooterTLV, done func(CheckOutcome, process.ShortID, error)) {
	if footer.Type != FooterTypeSHA256Credentials {
		done(Pass, process.ShortID{}, nil)
		return
	}

	digest := hex.EncodeToString(footer.Payload)
	ok, err := p.rdb.SIsMember(ctx, p.acceptedSetKey(), digest).Result()
	if err != nil {
		// Internal error: §4.5 says treat as Pass (advance footer) but log.
		p.log.Warn("credential lookup failed, passing footer", zap.Error(err), zap.String("name", proc.Name()))
		done(Pass, process.ShortID{}, err)
		return
	}
	if !ok {
		done(Reject, process.ShortID{}, nil)
		return
	}

	done(Accept, shortIDFromDigest(footer.Payload), nil)
}

// shortIDFromDigest derives a fixed (non-LocallyUnique) ShortID from the
// leading bytes of a credential hash, so the same signed binary always
// gets the same short id across restarts. A payload shorter than 4 bytes
// instead gets the next id from nextFixedShortID, which is not stable
// across restarts.
func shortIDFromDigest(payload []byte) process.ShortID {
	if len(payload) < 4 {
		return nextFixedShortID()
	}
	return process.ShortID{Value: binary.BigEndian.Uint32(payload[:4])}
}
