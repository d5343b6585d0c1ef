package keys

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/api"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/config"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/infra/signing"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/util/command"
	"github.com/zakkycrypt01/spenednsave-sub002/pkg/envelope"
)

// New groups the key material helpers used in development and operations.
func New() *cobra.Command {
	return command.NewSubcommandGroup("keys",
		newGuardianCmd(),
		newStorageCmd(),
		newTokenCmd(),
		newSignCmd(),
	)
}

func newGuardianCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "guardian",
		Short: "Generate a guardian key pair",
		Run: func(cmd *cobra.Command, args []string) {
			key, err := crypto.GenerateKey()
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to generate key")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "address: %s\nprivate: %s\n",
				crypto.PubkeyToAddress(key.PublicKey).Hex(), hex.EncodeToString(crypto.FromECDSA(key)))
		},
	}
}

func newStorageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "storage",
		Short: "Generate a STORAGE_ENCRYPTION_KEY",
		Run: func(cmd *cobra.Command, args []string) {
			key, err := envelope.NewKey()
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to generate key")
			}
			fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(key))
		},
	}
}

func newTokenCmd() *cobra.Command {
	var address string
	var role string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token signed with SERVER_AUTH_JWT_SECRET",
		Run: func(cmd *cobra.Command, args []string) {
			token, err := IssueToken(config.DefaultServiceConfigFromEnv(), address, role)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to issue token")
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "Caller address the token is issued to")
	cmd.Flags().StringVar(&role, "role", "guardian", "Role claim of the token")
	_ = cmd.MarkFlagRequired("address")

	return cmd
}

// IssueToken mints a bearer token for address with the configured secret.
func IssueToken(cfg config.Server, address string, role string) (string, error) {
	if !common.IsHexAddress(address) {
		return "", errors.Errorf("invalid address %q", address)
	}

	m := api.NewJWTManager(cfg, api.NewClock())
	token, validUntil, err := m.Generate(common.HexToAddress(address), role)
	if err != nil {
		return "", err
	}

	log.Debug().Time("valid_until", validUntil).Msg("Issued token")
	return token, nil
}

func newSignCmd() *cobra.Command {
	var digest string
	var privateKey string

	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign a payload digest as returned by the /payload endpoints",
		Run: func(cmd *cobra.Command, args []string) {
			sig, err := SignDigest(digest, privateKey)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to sign digest")
			}
			fmt.Fprintln(cmd.OutOrStdout(), sig)
		},
	}

	cmd.Flags().StringVar(&digest, "digest", "", "0x prefixed 32-byte digest")
	cmd.Flags().StringVar(&privateKey, "key", "", "Hex encoded guardian private key")
	_ = cmd.MarkFlagRequired("digest")
	_ = cmd.MarkFlagRequired("key")

	return cmd
}

// SignDigest signs a typed data digest with a hex encoded private key and returns the 0x signature.
func SignDigest(digest string, privateKey string) (string, error) {
	raw, err := hexutil.Decode(digest)
	if err != nil || len(raw) != common.HashLength {
		return "", errors.New("digest must be 0x followed by 32 bytes")
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKey, "0x"))
	if err != nil {
		return "", errors.Wrap(err, "invalid private key")
	}

	sig, err := signing.SignHash(common.BytesToHash(raw), key)
	if err != nil {
		return "", err
	}
	return hexutil.Encode(sig), nil
}
