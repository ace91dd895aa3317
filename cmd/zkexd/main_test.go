package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"zkex/core"
	"zkex/core/state"
	"zkex/storage"
	"zkex/storage/trie"
)

func newReplayProcessor(t *testing.T) *core.Processor {
	t.Helper()
	st := state.NewExchangeState(common.HexToAddress("0xEC"), state.DefaultStorageDepth)
	_, err := st.RegisterToken(common.Address{})
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return core.NewProcessor(st, trie.NewAccumulator(storage.NewMemDB()), logger, nil)
}

func writeJournal(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600))
	return path
}

func TestReplayJournalAppliesAndCommits(t *testing.T) {
	p := newReplayProcessor(t)
	path := writeJournal(t,
		"# bootstrap",
		`{"kind":"deposit","deposit":{"owner":"0x00000000000000000000000000000000000000a1","accountId":1,"tokenId":0,"amount":100}}`,
		`{"kind":"internalTransfer","internalTransfer":{"fromAccountId":1,"toAccountId":2,"tokenId":0,"amount":40}}`,
	)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, replayJournal(p, path, logger))

	st := p.State()
	require.Equal(t, int64(60), st.GetAccount(1).GetBalance(0).Balance.Int64())
	require.Equal(t, int64(40), st.GetAccount(2).GetBalance(0).Balance.Int64())
	require.Len(t, p.Blocks(), 1)
}

func TestReplayJournalHandlesLongLines(t *testing.T) {
	p := newReplayProcessor(t)
	padding := strings.Repeat("x", 256*1024)
	path := writeJournal(t, fmt.Sprintf(
		`{"kind":"deposit","deposit":{"owner":"0x00000000000000000000000000000000000000a1","accountId":1,"tokenId":0,"amount":100},"memo":%q}`,
		padding,
	))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, replayJournal(p, path, logger))
	require.Equal(t, int64(100), p.State().GetAccount(1).GetBalance(0).Balance.Int64())
	require.Len(t, p.Blocks(), 1)
}
