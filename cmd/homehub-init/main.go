// Command homehub-init creates the secrets directory shared by the hub and
// its devices: both RSA key pairs, the storage keys and the sealed
// credentials file.
//
// Usage:
//
//	homehub-init [flags]
//
// Flags:
//
//	-dir string    Secrets directory (default "./Secrets")
//	-user string   Shared user name (default "user1")
//	-pass string   Shared password (default "user1password")
//	-bits int      RSA key size (default 2048)
//	-force         Overwrite existing key material
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/homehub-sim/homehub/internal/config"
	"github.com/homehub-sim/homehub/pkg/keys"
	"github.com/homehub-sim/homehub/pkg/persistence"
	"github.com/homehub-sim/homehub/pkg/wire"
)

var (
	dir   = flag.String("dir", config.DefaultSecretsDir, "Secrets directory")
	user  = flag.String("user", "user1", "Shared user name")
	pass  = flag.String("pass", "user1password", "Shared password")
	bits  = flag.Int("bits", keys.DefaultBits, "RSA key size")
	force = flag.Bool("force", false, "Overwrite existing key material")
)

func main() {
	flag.Parse()
	log.SetFlags(0)

	if err := run(*dir, wire.Credentials{User: *user, Pass: *pass}, *bits, *force); err != nil {
		log.Fatalf("ERROR: %v", err)
	}
	fmt.Printf("Secrets written to %s\n", *dir)
}

func run(dir string, creds wire.Credentials, bits int, force bool) error {
	if creds.User == "" || creds.Pass == "" {
		return errors.New("user and pass are required")
	}

	store := keys.NewFileStore(dir)
	if !force {
		if _, err := os.Stat(store.Path(keys.HubPrivateKeyFile)); err == nil {
			return fmt.Errorf("%s already exists (use -force to replace it)", store.Path(keys.HubPrivateKeyFile))
		}
	}

	if err := store.Generate(bits); err != nil {
		return err
	}

	devKeys, err := store.LoadDevice()
	if err != nil {
		return err
	}
	return persistence.NewCredentialsStore(store.Path(keys.CredentialsFile), devKeys.StorageKey).Save(creds)
}
