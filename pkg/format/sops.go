package format

import (
	"fmt"

	"github.com/cryptconf/cryptconf/pkg/integration"
	"github.com/cryptconf/cryptconf/pkg/metadata"
	"github.com/cryptconf/cryptconf/pkg/policy"
	"github.com/cryptconf/cryptconf/pkg/value"
)

// Wire field names for the sops metadata block. "kms" is kept as-is
// despite the naming inconsistency inherited from upstream SOPS: a
// document written by the reference ecosystem must stay readable.
const (
	sopsKey             = "sops"
	fieldAge            = "age"
	fieldKMS            = "kms"
	fieldRecipient      = "recipient"
	fieldEnc            = "enc"
	fieldAWSProfile     = "aws_profile"
	fieldARN            = "arn"
	fieldCreatedAt      = "created_at"
	fieldLastModified   = "lastmodified"
	fieldMac            = "mac"
	fieldUnencSuffix    = "unencrypted_suffix"
	fieldEncSuffix      = "encrypted_suffix"
	fieldUnencRegex     = "unencrypted_regex"
	fieldEncRegex       = "encrypted_regex"
	fieldMacOnlyEncOpt  = "mac_only_encrypted"
)

// SplitSopsBlock pulls the "sops" field out of a parsed document's
// root mapping, returning the remaining content mapping and the raw
// sops node (zero value if absent).
func SplitSopsBlock(doc RawNode) (content RawNode, sopsBlock RawNode, hasSops bool) {
	if doc.Kind() != RawMap {
		return doc, RawNode{}, false
	}
	out := orderedmapNew()
	for pair := doc.Mapping().Oldest(); pair != nil; pair = pair.Next() {
		if pair.Key == sopsKey {
			sopsBlock = pair.Value
			hasSops = true
			continue
		}
		out.Set(pair.Key, pair.Value)
	}
	return NewRawMap(out), sopsBlock, hasSops
}

// MergeSopsBlock reinserts a sops node as the last field of a content
// mapping. SOPS conventionally places it last; this is cosmetic, not
// load-bearing, but matches reference output.
func MergeSopsBlock(content RawNode, sopsBlock RawNode) RawNode {
	if content.Kind() != RawMap {
		return content
	}
	out := orderedmapNew()
	for pair := content.Mapping().Oldest(); pair != nil; pair = pair.Next() {
		out.Set(pair.Key, pair.Value)
	}
	out.Set(sopsKey, sopsBlock)
	return NewRawMap(out)
}

// RawToEncryptedMetadata parses a raw sops block into encrypted file
// metadata. The AEAD cipher's name (needed by the caller to parse the
// document's ENC[...] leaves against the same cipher) is read from the
// result with CipherNameFromMac.
func RawToEncryptedMetadata(sopsBlock RawNode, reg *integration.Registry) (*metadata.EncryptedFileMetadata, error) {
	integrations := metadata.NewIntegrationMetadata()

	if ageNode, ok := sopsBlock.MapGet(fieldAge); ok {
		if err := parseUnits(ageNode, func(unit RawNode) (string, metadata.IntegrationMetadataUnit, error) {
			recipient, _ := unit.MapGet(fieldRecipient)
			enc, _ := unit.MapGet(fieldEnc)
			return recipient.StringValue(), metadata.IntegrationMetadataUnit{
				KeyID:            recipient.StringValue(),
				EncryptedDataKey: enc.StringValue(),
			}, nil
		}, integrations, integration.AgeName); err != nil {
			return nil, err
		}
	}

	if kmsNode, ok := sopsBlock.MapGet(fieldKMS); ok {
		if err := parseUnits(kmsNode, func(unit RawNode) (string, metadata.IntegrationMetadataUnit, error) {
			profile, _ := unit.MapGet(fieldAWSProfile)
			arn, _ := unit.MapGet(fieldARN)
			enc, _ := unit.MapGet(fieldEnc)
			keyID := integration.FormatKeyID(profile.StringValue(), arn.StringValue())
			u := metadata.IntegrationMetadataUnit{KeyID: keyID, EncryptedDataKey: enc.StringValue()}
			if createdAtNode, ok := unit.MapGet(fieldCreatedAt); ok {
				t, err := metadata.ParseTimestamp(createdAtNode.StringValue())
				if err != nil {
					return "", metadata.IntegrationMetadataUnit{}, fmt.Errorf("%w: created_at: %v", ErrMalformedEncryptedValue, err)
				}
				u.CreatedAt = &t
			}
			return keyID, u, nil
		}, integrations, integration.AWSKMSName); err != nil {
			return nil, err
		}
	}

	lastModifiedNode, ok := sopsBlock.MapGet(fieldLastModified)
	if !ok {
		return nil, fmt.Errorf("%w: sops block missing %q", ErrMalformedEncryptedValue, fieldLastModified)
	}
	lastModified, err := metadata.ParseTimestamp(lastModifiedNode.StringValue())
	if err != nil {
		return nil, fmt.Errorf("%w: lastmodified: %v", ErrMalformedEncryptedValue, err)
	}

	macNode, ok := sopsBlock.MapGet(fieldMac)
	if !ok {
		return nil, fmt.Errorf("%w: sops block missing %q", ErrMalformedEncryptedValue, fieldMac)
	}
	mac, err := value.ParseEncryptedValueAnyCipher(macNode.StringValue())
	if err != nil {
		return nil, fmt.Errorf("%w: mac: %v", ErrMalformedEncryptedValue, err)
	}

	cfg, err := resolvedPartialEncryptionConfig(sopsBlock)
	if err != nil {
		return nil, err
	}

	macOnlyEncrypted := false
	if flagNode, ok := sopsBlock.MapGet(fieldMacOnlyEncOpt); ok {
		macOnlyEncrypted = flagNode.BoolValue()
	}

	return &metadata.EncryptedFileMetadata{
		Integrations:      integrations,
		LastModified:      lastModified,
		Mac:               mac,
		PartialEncryption: cfg,
		MacOnlyEncrypted:  macOnlyEncrypted,
	}, nil
}

func parseUnits(
	node RawNode,
	build func(RawNode) (string, metadata.IntegrationMetadataUnit, error),
	integrations *metadata.IntegrationMetadata,
	integrationName string,
) error {
	if node.Kind() != RawSeq {
		return fmt.Errorf("%w: %q must be a sequence of units", ErrMalformedEncryptedValue, integrationName)
	}
	for _, unitNode := range node.Seq() {
		keyID, unit, err := build(unitNode)
		if err != nil {
			return err
		}
		integrations.SetUnit(integrationName, keyID, unit)
	}
	return nil
}

func resolvedPartialEncryptionConfig(sopsBlock RawNode) (policy.Config, error) {
	if n, ok := sopsBlock.MapGet(fieldEncSuffix); ok {
		return policy.EncryptedSuffix(n.StringValue()), nil
	}
	if n, ok := sopsBlock.MapGet(fieldUnencSuffix); ok {
		return policy.UnencryptedSuffix(n.StringValue()), nil
	}
	if n, ok := sopsBlock.MapGet(fieldEncRegex); ok {
		return policy.EncryptedRegex(n.StringValue())
	}
	if n, ok := sopsBlock.MapGet(fieldUnencRegex); ok {
		return policy.UnencryptedRegex(n.StringValue())
	}
	return policy.None(), nil
}

// EncryptedMetadataToRaw renders encrypted file metadata back into a
// raw sops block.
func EncryptedMetadataToRaw(m *metadata.EncryptedFileMetadata) (RawNode, error) {
	out := orderedmapNew()

	if units := m.Integrations.Units(integration.AgeName); units != nil && units.Len() > 0 {
		seq := make([]RawNode, 0, units.Len())
		for pair := units.Oldest(); pair != nil; pair = pair.Next() {
			unitMap := orderedmapNew()
			unitMap.Set(fieldRecipient, NewRawString(pair.Value.KeyID))
			unitMap.Set(fieldEnc, NewRawString(pair.Value.EncryptedDataKey))
			seq = append(seq, NewRawMap(unitMap))
		}
		out.Set(fieldAge, NewRawSeq(seq))
	}

	if units := m.Integrations.Units(integration.AWSKMSName); units != nil && units.Len() > 0 {
		seq := make([]RawNode, 0, units.Len())
		for pair := units.Oldest(); pair != nil; pair = pair.Next() {
			profile, arn, err := integration.SplitAWSKeyID(pair.Value.KeyID)
			if err != nil {
				return RawNode{}, err
			}
			unitMap := orderedmapNew()
			unitMap.Set(fieldAWSProfile, NewRawString(profile))
			unitMap.Set(fieldARN, NewRawString(arn))
			if pair.Value.CreatedAt != nil {
				unitMap.Set(fieldCreatedAt, NewRawString(metadata.FormatTimestamp(*pair.Value.CreatedAt)))
			}
			unitMap.Set(fieldEnc, NewRawString(pair.Value.EncryptedDataKey))
			seq = append(seq, NewRawMap(unitMap))
		}
		out.Set(fieldKMS, NewRawSeq(seq))
	}

	out.Set(fieldLastModified, NewRawString(metadata.FormatTimestamp(m.LastModified)))
	out.Set(fieldMac, NewRawString(m.Mac.String()))

	switch m.PartialEncryption.Kind() {
	case policy.KindEncryptedSuffix:
		out.Set(fieldEncSuffix, NewRawString(m.PartialEncryption.Pattern()))
	case policy.KindUnencryptedSuffix:
		out.Set(fieldUnencSuffix, NewRawString(m.PartialEncryption.Pattern()))
	case policy.KindEncryptedRegex:
		out.Set(fieldEncRegex, NewRawString(m.PartialEncryption.Pattern()))
	case policy.KindUnencryptedRegex:
		out.Set(fieldUnencRegex, NewRawString(m.PartialEncryption.Pattern()))
	}

	if m.MacOnlyEncrypted {
		out.Set(fieldMacOnlyEncOpt, NewRawBool(true))
	}

	return NewRawMap(out), nil
}

// CipherNameFromMac extracts the cipher name recorded in the sops
// block's mac field, so the caller can validate every ENC[...] leaf in
// the document was sealed under the same cipher.
func CipherNameFromMac(m *metadata.EncryptedFileMetadata) string {
	return m.Mac.Cipher
}
