package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/brojonat/ultraswap/service/keystore"
	"github.com/fatih/color"
	"github.com/gagliardetto/solana-go"
	"github.com/urfave/cli/v2"
)

func keyCommands() *cli.Command {
	return &cli.Command{
		Name:  "key",
		Usage: "Manage the local private key file",
		Subcommands: []*cli.Command{
			{
				Name:      "set",
				Usage:     "Save a base58 private key to the key file",
				ArgsUsage: "[key]",
				Description: `Reads the key from stdin when no argument is given, so it stays out
of shell history.`,
				Action: func(c *cli.Context) error {
					encoded := c.Args().First()
					if encoded == "" {
						fmt.Fprint(os.Stderr, "Private key (base58): ")
						line, err := bufio.NewReader(os.Stdin).ReadString('\n')
						if err != nil && line == "" {
							return fmt.Errorf("failed to read key: %w", err)
						}
						encoded = strings.TrimSpace(line)
					}

					key, err := keystore.Parse(encoded)
					if err != nil {
						return err
					}
					path := c.String("key-path")
					if err := keystore.SaveFile(path, key); err != nil {
						return err
					}

					if c.Bool("json") {
						return outputJSON(map[string]string{"public_key": key.PublicKey().String(), "path": path})
					}
					color.Green("Private key set and saved.")
					fmt.Printf("  Public key: %s\n", color.CyanString(key.PublicKey().String()))
					fmt.Printf("  File:       %s\n", path)
					return nil
				},
			},
			{
				Name:  "show",
				Usage: "Show the public key of the configured private key",
				Action: func(c *cli.Context) error {
					key, err := loadKey(c)
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return outputJSON(map[string]string{"public_key": key.PublicKey().String()})
					}
					fmt.Println(key.PublicKey().String())
					return nil
				},
			},
		},
	}
}

// loadKey reads the key from SOLANA_PRIVATE_KEY_BASE58 or the key file.
func loadKey(c *cli.Context) (solana.PrivateKey, error) {
	path := c.String("key-path")
	key, err := keystore.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load private key from %s: %w", path, err)
	}
	return key, nil
}
