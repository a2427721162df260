// Package keyring resolves the server-wide secret used to sign session cookies.
//
// Resolution order: SSM SecureString parameter, KMS-encrypted blob, static
// value from config, and finally an ephemeral random key. The ephemeral key
// invalidates every session on restart and is only suitable for development.
package keyring

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/keithlinneman/linnemanlabs-webapp/internal/xerrors"
)

// MinKeyBytes is the shortest signing key accepted from any source.
const MinKeyBytes = 32

// Source names where a key came from, for logs.
type Source string

const (
	SourceSSM       Source = "ssm"
	SourceKMS       Source = "kms"
	SourceStatic    Source = "static"
	SourceEphemeral Source = "ephemeral"
)

// ssmParamGetter is the subset of the SSM API needed to read a parameter.
type ssmParamGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// kmsDecrypter is the subset of the KMS API needed to unwrap a key blob.
type kmsDecrypter interface {
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

type Options struct {
	// SSMParam names a SecureString parameter holding the key (hex or base64).
	SSMParam string
	// KMSBlob is a base64 KMS ciphertext whose plaintext is the raw key.
	KMSBlob string
	// Static is a key from config, hex or base64 or raw bytes.
	Static string

	SSM ssmParamGetter
	KMS kmsDecrypter
}

// Key is a resolved signing key.
type Key struct {
	Bytes  []byte
	Source Source
}

// Load resolves the signing key from the first configured source.
func Load(ctx context.Context, opts Options) (Key, error) {
	switch {
	case opts.SSMParam != "":
		b, err := fromSSM(ctx, opts.SSM, opts.SSMParam)
		if err != nil {
			return Key{}, err
		}
		return Key{Bytes: b, Source: SourceSSM}, nil
	case opts.KMSBlob != "":
		b, err := fromKMS(ctx, opts.KMS, opts.KMSBlob)
		if err != nil {
			return Key{}, err
		}
		return Key{Bytes: b, Source: SourceKMS}, nil
	case opts.Static != "":
		b := decode(opts.Static)
		if len(b) < MinKeyBytes {
			return Key{}, xerrors.Newf("static session key is %d bytes, need at least %d", len(b), MinKeyBytes)
		}
		return Key{Bytes: b, Source: SourceStatic}, nil
	default:
		b := make([]byte, MinKeyBytes)
		if _, err := rand.Read(b); err != nil {
			return Key{}, xerrors.Wrap(err, "generate ephemeral session key")
		}
		return Key{Bytes: b, Source: SourceEphemeral}, nil
	}
}

func fromSSM(ctx context.Context, c ssmParamGetter, name string) ([]byte, error) {
	if c == nil {
		return nil, xerrors.New("ssm client is not configured")
	}
	out, err := c.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return nil, xerrors.Wrapf(err, "get SSM parameter %s", name)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return nil, xerrors.Newf("SSM parameter %s has no value", name)
	}
	b := decode(*out.Parameter.Value)
	if len(b) < MinKeyBytes {
		return nil, xerrors.Newf("SSM parameter %s holds %d key bytes, need at least %d", name, len(b), MinKeyBytes)
	}
	return b, nil
}

func fromKMS(ctx context.Context, c kmsDecrypter, blob string) ([]byte, error) {
	if c == nil {
		return nil, xerrors.New("kms client is not configured")
	}
	ct, err := base64.StdEncoding.DecodeString(strings.TrimSpace(blob))
	if err != nil {
		return nil, xerrors.Wrap(err, "decode KMS key blob")
	}
	out, err := c.Decrypt(ctx, &kms.DecryptInput{CiphertextBlob: ct})
	if err != nil {
		return nil, xerrors.Wrap(err, "kms decrypt session key")
	}
	if len(out.Plaintext) < MinKeyBytes {
		return nil, xerrors.Newf("KMS key blob holds %d bytes, need at least %d", len(out.Plaintext), MinKeyBytes)
	}
	return out.Plaintext, nil
}

// decode accepts hex, then base64 (std or url), and falls back to the raw bytes.
func decode(s string) []byte {
	s = strings.TrimSpace(s)
	if b, err := hex.DecodeString(s); err == nil && len(b) > 0 {
		return b
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil && len(b) > 0 {
		return b
	}
	if b, err := base64.RawURLEncoding.DecodeString(s); err == nil && len(b) > 0 {
		return b
	}
	return []byte(s)
}
