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
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

const dirPerms = 0o700

// CLIVersion is set at build time through ldflags.
var CLIVersion = "dev"

var rootPath string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "polaris",
	Short: "Polaris prediction market node",
	Long:  "Off-chain order matching and on-chain settlement reconciliation for binary outcome prediction markets",
}

// Execute is the main function of the `cmd` package, called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rootPath, "home", "H", defaultPolarisDir(), "Path of the root directory holding configuration and state")
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of the polaris node",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("polaris %s\n", CLIVersion)
	},
}

// defaultPolarisDir returns the default location of the node's
// configuration and state.
func defaultPolarisDir() string {
	return os.ExpandEnv(filepath.Join("$HOME", ".polaris"))
}

// ensureDir will make sure a directory exists or is created at a given filesystem path.
func ensureDir(path string) error {
	_, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return os.MkdirAll(path, dirPerms)
		}
		return err
	}
	return nil
}

// pathExists returns whether anything exists at a given filesystem path.
func pathExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
