package cli

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"github.com/utxod/utxod/internal/app"
	"github.com/utxod/utxod/internal/node"
)

// stubService records facade calls made by command actions.
type stubService struct {
	app.Service

	createdWallet  bool
	deletedAddress string
	transfer       struct {
		from, to string
		amount   int
		mineNow  bool
	}
	addedPeer string
}

func (s *stubService) CreateWallet(ctx context.Context) (string, error) {
	s.createdWallet = true
	return "1StubAddress", nil
}

func (s *stubService) Addresses() []string {
	return []string{"1StubAddress"}
}

func (s *stubService) DeleteWallet(ctx context.Context, address string) error {
	s.deletedAddress = address
	return nil
}

func (s *stubService) SubmitTransfer(ctx context.Context, from, to string, amount int, mineNow bool) (string, error) {
	s.transfer.from = from
	s.transfer.to = to
	s.transfer.amount = amount
	s.transfer.mineNow = mineNow
	return "stubtxid", nil
}

func (s *stubService) AddPeer(ctx context.Context, address string) error {
	s.addedPeer = address
	return nil
}

func (s *stubService) KnownPeers() []node.KnownNode {
	return []node.KnownNode{{Address: "127.0.0.1:8335"}}
}

func runCommand(t *testing.T, cmd *cli.Command, args ...string) error {
	t.Helper()

	root := &cli.Command{Commands: []*cli.Command{cmd}}
	return root.Run(t.Context(), append([]string{"utxod"}, args...))
}

func TestWalletCommand(t *testing.T) {
	t.Run("should create command with correct metadata", func(t *testing.T) {
		cmd := walletCommand(&stubService{})

		assert.Equal(t, "wallet", cmd.Name)
		require.Len(t, cmd.Commands, 5)

		names := make([]string, 0, len(cmd.Commands))
		for _, sub := range cmd.Commands {
			names = append(names, sub.Name)
		}
		assert.ElementsMatch(t, []string{"create", "list", "delete", "export", "import"}, names)
	})

	t.Run("create should call the facade", func(t *testing.T) {
		svc := &stubService{}

		err := runCommand(t, walletCommand(svc), "wallet", "create")
		require.NoError(t, err)
		assert.True(t, svc.createdWallet)
	})

	t.Run("delete should pass the address flag", func(t *testing.T) {
		svc := &stubService{}

		err := runCommand(t, walletCommand(svc), "wallet", "delete", "--address", "1StubAddress")
		require.NoError(t, err)
		assert.Equal(t, "1StubAddress", svc.deletedAddress)
	})

	t.Run("import should require exactly one source", func(t *testing.T) {
		svc := &stubService{}

		err := runCommand(t, walletCommand(svc), "wallet", "import")
		assert.Error(t, err)

		err = runCommand(t, walletCommand(svc), "wallet", "import", "--path", "x", "--seed", "y")
		assert.Error(t, err)
	})
}

func TestSendCommand(t *testing.T) {
	t.Run("should create command with correct metadata", func(t *testing.T) {
		cmd := sendCommand(&stubService{})

		assert.Equal(t, "send", cmd.Name)
		require.Len(t, cmd.Flags, 4)
	})

	t.Run("should pass every flag to the facade", func(t *testing.T) {
		svc := &stubService{}

		err := runCommand(t, sendCommand(svc),
			"send", "--from", "1Sender", "--to", "1Receiver", "--amount", "4", "--mine")
		require.NoError(t, err)

		assert.Equal(t, "1Sender", svc.transfer.from)
		assert.Equal(t, "1Receiver", svc.transfer.to)
		assert.Equal(t, 4, svc.transfer.amount)
		assert.True(t, svc.transfer.mineNow)
	})

	t.Run("should fail without required flags", func(t *testing.T) {
		err := runCommand(t, sendCommand(&stubService{}), "send", "--from", "1Sender")
		assert.Error(t, err)
	})
}

func TestPeersCommand(t *testing.T) {
	t.Run("add should pass the address flag", func(t *testing.T) {
		svc := &stubService{}

		err := runCommand(t, peersCommand(svc), "peers", "add", "--address", "127.0.0.1:9000")
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1:9000", svc.addedPeer)
	})

	t.Run("list should not fail", func(t *testing.T) {
		err := runCommand(t, peersCommand(&stubService{}), "peers", "list")
		assert.NoError(t, err)
	})
}
