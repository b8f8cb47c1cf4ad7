// Copyright (C) 2024 Polaris Markets Ltd.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"code.polarismarkets.io/polaris/config"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a polaris node",
	Long:  "Generate the minimal configuration required for a polaris node to start",
	RunE:  runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Erase existing polaris configuration at the specified path")
}

func runInit(_ *cobra.Command, _ []string) error {
	rootPathExists, err := pathExists(rootPath)
	if err != nil {
		return err
	}

	if rootPathExists && !initForce {
		return fmt.Errorf("configuration already exists at `%v` please remove it first or re-run using -f", rootPath)
	}

	if rootPathExists && initForce {
		os.RemoveAll(rootPath) // ignore any errors here to force removal
	}

	if err := ensureDir(rootPath); err != nil {
		return err
	}

	cfg := config.NewDefaultConfig(rootPath)
	if err := ensureDir(cfg.Checkpoint.Path); err != nil {
		return err
	}

	if err := config.Write(rootPath, cfg); err != nil {
		return err
	}

	// generate the operator key the settlement submitter signs with
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return err
	}
	keyPath := filepath.Join(rootPath, cfg.Settlement.OperatorKeyFile)
	raw := hex.EncodeToString(ethcrypto.FromECDSA(key))
	if err := os.WriteFile(keyPath, []byte(raw), 0o600); err != nil {
		return err
	}

	fmt.Printf("configuration generated at %s\n", rootPath)
	fmt.Printf("operator address %s\n", ethcrypto.PubkeyToAddress(key.PublicKey).Hex())
	return nil
}
