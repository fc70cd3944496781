// Command keygen creates the key material a production tallying authority
// loads at startup: the RSA key pair, the receipt signing key and a
// process-wide field key printed for the environment.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"votevault/pkg/config"
	"votevault/pkg/crypto"
	"votevault/pkg/log"
)

func main() {
	keyDir := flag.String("keys", "keys", "Directory to write the key material to.")
	bits := flag.Int("bits", crypto.DefaultKeyBits, "RSA modulus size.")
	force := flag.Bool("force", false, "Overwrite existing key material.")
	flag.Parse()

	if err := run(*keyDir, *bits, *force); err != nil {
		log.Fatalf("Key generation failed: %v", err)
	}
}

func run(keyDir string, bits int, force bool) error {
	if !force {
		for _, name := range []string{crypto.PublicKeyFile, crypto.PrivateKeyFile, crypto.ReceiptKeyFile} {
			if _, err := os.Stat(filepath.Join(keyDir, name)); err == nil {
				return fmt.Errorf("%s already exists in %s, use -force to replace it", name, keyDir)
			}
		}
	}

	random := crypto.RandomSource("")
	kp, err := crypto.GenerateKeyPair(random, bits)
	if err != nil {
		return err
	}
	if err := crypto.WriteKeyPair(keyDir, kp); err != nil {
		return err
	}
	sk, _ := crypto.NewReceiptKey(random)
	if err := crypto.WriteReceiptKey(keyDir, sk); err != nil {
		return err
	}
	fieldKey, err := crypto.GenerateKey(random)
	if err != nil {
		return err
	}

	log.Info("Wrote %d-bit key pair and receipt key to %s", bits, keyDir)
	fmt.Printf("export %s=%s\n", config.EnvFieldKey, hex.EncodeToString(fieldKey))
	return nil
}
