// Command cryptconf is an illustrative front end for pkg/file and
// pkg/format: it reads a YAML document from a path argument, builds an
// encrypted file wrapping a fresh data key under the age recipient of
// each identity in ROPS_AGE, and writes the encrypted document to
// stdout. It has no
// argument parser beyond the one positional path, no editor-spawning
// workflow, and no config-file discovery rules — those belong to a real
// SOPS-compatible CLI, which this is not.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"filippo.io/age"
	"github.com/pion/logging"

	"github.com/cryptconf/cryptconf/pkg/crypto"
	"github.com/cryptconf/cryptconf/pkg/file"
	"github.com/cryptconf/cryptconf/pkg/format"
	"github.com/cryptconf/cryptconf/pkg/integration"
)

func main() {
	loggerFactory := logging.NewDefaultLoggerFactory()
	log := loggerFactory.NewLogger("cryptconf")

	if err := run(log); err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}

func run(log logging.LeveledLogger) error {
	if len(os.Args) != 2 {
		return fmt.Errorf("usage: %s <path-to-yaml-file>", os.Args[0])
	}
	path := os.Args[1]

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	adapter := format.YAML{}
	plaintext, err := adapter.DecryptedToInternal(data)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	log.Debugf("parsed %s", path)

	keys := integration.OSEnvKeyProvider{}
	identities := keys.PrivateKeys(integration.AgeName)
	if len(identities) == 0 {
		return fmt.Errorf("ROPS_AGE must name at least one age identity")
	}
	recipients, err := recipientsFor(identities)
	if err != nil {
		return err
	}
	reg := integration.NewRegistry(integration.NewAge(keys))

	cipher := crypto.NewAES256GCM()
	hasher := crypto.NewSHA512Hasher()
	cfg := file.BuilderConfig{
		Keys: []file.BuilderKey{{Integration: integration.AgeName, KeyIDs: recipients}},
	}

	encrypted, err := file.Build(context.Background(), cipher, hasher, reg, plaintext, cfg, time.Now())
	if err != nil {
		return fmt.Errorf("encrypting %s: %w", path, err)
	}
	log.Debugf("encrypted %s under %d recipient(s)", path, len(recipients))

	sopsBlock, err := format.EncryptedMetadataToRaw(encrypted.Metadata)
	if err != nil {
		return fmt.Errorf("serializing metadata: %w", err)
	}

	out, err := adapter.EncryptedFromInternal(encrypted.Map, sopsBlock)
	if err != nil {
		return fmt.Errorf("serializing %s: %w", path, err)
	}

	_, err = os.Stdout.Write(out)
	return err
}

// recipientsFor derives each identity's own recipient string, so the
// demo encrypts to the same key ROPS_AGE already holds the private half
// of: the file it writes can be decrypted again with that same
// environment, without requiring a separate public-key input.
func recipientsFor(identities []string) ([]string, error) {
	out := make([]string, 0, len(identities))
	for _, raw := range identities {
		id, err := age.ParseX25519Identity(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing ROPS_AGE identity: %w", err)
		}
		out = append(out, id.Recipient().String())
	}
	return out, nil
}
