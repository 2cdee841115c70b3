package integration

import (
	"context"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/kms"

	"github.com/cryptconf/cryptconf/pkg/crypto"
)

// AWSKMSName is the integration's name, used as the ROPS_AWS_KMS
// environment variable suffix. It is not the sops metadata key: that
// field is "kms" (inherited unchanged from upstream SOPS, see
// pkg/format).
const AWSKMSName = "aws_kms"

// keyIDPattern parses the "<profile>.<arn>" key-id syntax. The ARN's
// region segment is extracted to build a client for it.
var keyIDPattern = regexp.MustCompile(`^([^.]+)\.(arn:aws:kms:([a-z0-9-]+):[0-9]+:key/.+)$`)

// privateKeyPattern parses the "<profile>.<access-key-id>.<secret>" private-key syntax.
var privateKeyPattern = regexp.MustCompile(`^([^.]+)\.([^.]+)\.(.+)$`)

// ErrMalformedKeyID is returned when a key id does not match
// "<profile>.<arn>".
var ErrMalformedKeyID = fmt.Errorf("%w: aws_kms: key id must be \"<profile>.<arn>\"", ErrIntegration)

// ErrMalformedPrivateKey is returned when a ROPS_AWS_KMS entry does not
// match "<profile>.<access-key-id>.<secret>".
var ErrMalformedPrivateKey = fmt.Errorf("%w: aws_kms: private key must be \"<profile>.<access-key-id>.<secret>\"", ErrIntegration)

type awsKeyID struct {
	profile string
	arn     string
	region  string
}

func parseAWSKeyID(s string) (awsKeyID, error) {
	m := keyIDPattern.FindStringSubmatch(s)
	if m == nil {
		return awsKeyID{}, ErrMalformedKeyID
	}
	return awsKeyID{profile: m[1], arn: m[2], region: m[3]}, nil
}

type awsPrivateKey struct {
	profile         string
	accessKeyID     string
	secretAccessKey string
}

func parseAWSPrivateKey(s string) (awsPrivateKey, error) {
	m := privateKeyPattern.FindStringSubmatch(s)
	if m == nil {
		return awsPrivateKey{}, ErrMalformedPrivateKey
	}
	return awsPrivateKey{profile: m[1], accessKeyID: m[2], secretAccessKey: m[3]}, nil
}

// AWSKMS wraps data keys with AWS Key Management Service, one client
// per profile: either built from explicit ROPS_AWS_KMS credentials or
// from the AWS SDK's own default credential chain scoped to that
// profile.
type AWSKMS struct {
	Keys KeyProvider

	// newClient is overridable in tests to avoid constructing a real
	// AWS client.
	newClient func(region, accessKeyID, secretAccessKey string) kmsClient
}

// kmsClient is the subset of *kms.Client this integration calls,
// narrowed to keep the integration testable without a live AWS account.
type kmsClient interface {
	Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// NewAWSKMS builds an AWS KMS integration reading private keys from
// the given provider.
func NewAWSKMS(keys KeyProvider) *AWSKMS {
	return &AWSKMS{
		Keys: keys,
		newClient: func(region, accessKeyID, secretAccessKey string) kmsClient {
			return kms.New(kms.Options{
				Region:      region,
				Credentials: credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
			})
		},
	}
}

func (a *AWSKMS) Name() string           { return AWSKMSName }
func (a *AWSKMS) IncludesCreatedAt() bool { return true }

// findClient returns a KMS client for the key id's profile. A
// ROPS_AWS_KMS entry matching the profile takes precedence (explicit
// static credentials, e.g. for a CI runner with no shared config file);
// otherwise it falls back to the AWS SDK's own default credential chain
// (shared config/credentials file, AWS_* environment variables, IMDS)
// scoped to that profile via aws-sdk-go-v2/config.LoadDefaultConfig,
// which is how a host already logged in via `aws configure`/SSO is
// expected to supply the integration's credentials. Returns nil only
// if neither source can resolve credentials for the profile.
func (a *AWSKMS) findClient(ctx context.Context, keyID awsKeyID) (kmsClient, error) {
	for _, raw := range a.Keys.PrivateKeys(AWSKMSName) {
		pk, err := parseAWSPrivateKey(raw)
		if err != nil {
			return nil, err
		}
		if pk.profile == keyID.profile {
			return a.newClient(keyID.region, pk.accessKeyID, pk.secretAccessKey), nil
		}
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(keyID.region),
		config.WithSharedConfigProfile(keyID.profile),
	)
	if err != nil {
		return nil, nil
	}
	if _, err := cfg.Credentials.Retrieve(ctx); err != nil {
		return nil, nil
	}
	return kms.NewFromConfig(cfg), nil
}

// EncryptDataKey wraps dataKey under the KMS key named in keyID.
func (a *AWSKMS) EncryptDataKey(ctx context.Context, keyID string, dataKey *crypto.DataKey) (string, error) {
	parsed, err := parseAWSKeyID(keyID)
	if err != nil {
		return "", err
	}
	client, err := a.findClient(ctx, parsed)
	if err != nil {
		return "", err
	}
	if client == nil {
		return "", fmt.Errorf("%w: aws_kms: no private key configured for profile %q", ErrIntegration, parsed.profile)
	}

	out, err := client.Encrypt(ctx, &kms.EncryptInput{
		KeyId:     aws.String(keyARN(parsed)),
		Plaintext: dataKey.Bytes(),
	})
	if err != nil {
		return "", fmt.Errorf("%w: aws_kms: encrypt: %v", ErrIntegration, err)
	}
	return base64.StdEncoding.EncodeToString(out.CiphertextBlob), nil
}

// DecryptDataKey unwraps encryptedDataKey with the client findClient
// resolves for the key id's profile (a matching ROPS_AWS_KMS entry, else
// the SDK's default credential chain), or returns (nil, nil) if neither
// yields credentials.
func (a *AWSKMS) DecryptDataKey(ctx context.Context, keyID string, encryptedDataKey string) (*crypto.DataKey, error) {
	parsed, err := parseAWSKeyID(keyID)
	if err != nil {
		return nil, err
	}
	client, err := a.findClient(ctx, parsed)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, nil
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encryptedDataKey)
	if err != nil {
		return nil, fmt.Errorf("%w: aws_kms: decoding ciphertext: %v", ErrIntegration, err)
	}

	out, err := client.Decrypt(ctx, &kms.DecryptInput{
		KeyId:          aws.String(keyARN(parsed)),
		CiphertextBlob: ciphertext,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: aws_kms: decrypt: %v", ErrIntegration, err)
	}

	dataKey, err := crypto.DataKeyFromBytes(out.Plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: aws_kms: %v", ErrIntegration, err)
	}
	return dataKey, nil
}

func keyARN(id awsKeyID) string { return id.arn }

// FormatKeyID renders a profile and ARN back into the "<profile>.<arn>"
// wire syntax used by metadata units.
func FormatKeyID(profile, arn string) string {
	return strings.Join([]string{profile, arn}, ".")
}

// SplitAWSKeyID parses the "<profile>.<arn>" key-id syntax into its
// profile and ARN components, for adapters that serialize them as
// separate aws_profile/arn fields (the sops-inherited "kms" unit shape).
func SplitAWSKeyID(keyID string) (profile, arn string, err error) {
	parsed, err := parseAWSKeyID(keyID)
	if err != nil {
		return "", "", err
	}
	return parsed.profile, parsed.arn, nil
}
