package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"zkex/config"
	"zkex/core"
	"zkex/core/genesis"
	"zkex/core/state"
	"zkex/core/types"
	"zkex/observability"
	"zkex/observability/logging"
	"zkex/storage"
	"zkex/storage/trie"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	snapshotFlag := flag.String("snapshot", "", "Path to a state snapshot YAML file (overrides config GenesisFile)")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("ZKEX_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	var logger *slog.Logger
	if cfg.LogFile != "" {
		logger = logging.SetupWithFile("zkexd", env, cfg.LogFile)
	} else {
		logger = logging.Setup("zkexd", env)
	}

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "db"))
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	snapshotPath := *snapshotFlag
	if snapshotPath == "" {
		snapshotPath = cfg.GenesisFile
	}

	st, err := loadState(cfg, snapshotPath)
	if err != nil {
		logger.Error("Failed to load state", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.Metrics()
	processor := core.NewProcessor(st, trie.NewAccumulator(db), logger, metrics)
	if cfg.Protocol.TakerFeeBips != 0 || cfg.Protocol.MakerFeeBips != 0 {
		processor.SetProtocolFees(cfg.Protocol.TakerFeeBips, cfg.Protocol.MakerFeeBips)
	}
	metrics.Accounts.Set(float64(len(st.Accounts)))

	if cfg.JournalFile != "" {
		if err := replayJournal(processor, cfg.JournalFile, logger); err != nil {
			logger.Error("Journal replay failed", slog.Any("error", err))
			os.Exit(1)
		}
	}

	http.Handle("/metrics", promhttp.Handler())
	go func() {
		logger.Info("metrics listener started", "address", cfg.ListenAddress)
		if err := http.ListenAndServe(cfg.ListenAddress, nil); err != nil {
			logger.Error("metrics listener stopped", slog.Any("error", err))
		}
	}()

	logger.Info("exchange state loaded",
		"network", cfg.NetworkName,
		"exchange", st.Exchange.Hex(),
		"accounts", len(st.Accounts),
		"processedRequests", len(st.ProcessedRequests))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	if snapshotPath != "" {
		if err := genesis.SaveSpec(snapshotPath, genesis.DumpState(st)); err != nil {
			logger.Error("Failed to write shutdown snapshot", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("state snapshot written", "path", snapshotPath)
	}
}

func loadState(cfg *config.Config, snapshotPath string) (*state.ExchangeState, error) {
	if snapshotPath == "" {
		return state.NewExchangeState(cfg.ExchangeAddress(), cfg.Protocol.StorageDepth), nil
	}
	if _, err := os.Stat(snapshotPath); os.IsNotExist(err) {
		return state.NewExchangeState(cfg.ExchangeAddress(), cfg.Protocol.StorageDepth), nil
	}
	spec, err := genesis.LoadSpec(snapshotPath)
	if err != nil {
		return nil, err
	}
	if spec.StorageDepth != 0 && spec.StorageDepth != cfg.Protocol.StorageDepth {
		return nil, fmt.Errorf("snapshot storage depth %d does not match configured depth %d", spec.StorageDepth, cfg.Protocol.StorageDepth)
	}
	return genesis.BuildState(spec)
}

// journalEntry is one line of the request journal: the kind tag picks which
// of the embedded records is set.
type journalEntry struct {
	Kind string `json:"kind"`

	Deposit            *types.Deposit            `json:"deposit,omitempty"`
	OnchainWithdrawal  *types.OnchainWithdrawal  `json:"onchainWithdrawal,omitempty"`
	SpotTrade          *types.SpotTrade          `json:"spotTrade,omitempty"`
	OffchainWithdrawal *types.OffchainWithdrawal `json:"offchainWithdrawal,omitempty"`
	OrderCancellation  *types.OrderCancellation  `json:"orderCancellation,omitempty"`
	InternalTransfer   *types.InternalTransfer   `json:"internalTransfer,omitempty"`
}

func replayJournal(processor *core.Processor, path string, logger *slog.Logger) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	// Journal lines can exceed the scanner's default 64 KiB token limit.
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		entry := journalEntry{}
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return fmt.Errorf("journal line %d: %w", line, err)
		}
		if err := applyEntry(processor, entry); err != nil {
			return fmt.Errorf("journal line %d: %w", line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	if processor.PendingRequests() > 0 {
		block, err := processor.CommitBlock(core.CommitParams{})
		if err != nil {
			return err
		}
		logger.Info("journal replay committed",
			"blockIdx", block.BlockIdx,
			"numRequests", block.NumRequestsProcessed)
	}
	return nil
}

func applyEntry(processor *core.Processor, entry journalEntry) error {
	switch entry.Kind {
	case "deposit":
		if entry.Deposit == nil {
			return fmt.Errorf("deposit entry missing payload")
		}
		deposit, err := processor.SubmitDeposit(entry.Deposit.Owner, entry.Deposit.AccountID, entry.Deposit.TokenID, entry.Deposit.Amount, entry.Deposit.TransactionHash)
		if err != nil {
			return err
		}
		return processor.ApplyDeposit(deposit)
	case "onchainWithdrawal":
		if entry.OnchainWithdrawal == nil {
			return fmt.Errorf("onchainWithdrawal entry missing payload")
		}
		withdrawal, err := processor.SubmitOnchainWithdrawal(entry.OnchainWithdrawal.AccountID, entry.OnchainWithdrawal.TokenID, entry.OnchainWithdrawal.AmountRequested, entry.OnchainWithdrawal.TransactionHash)
		if err != nil {
			return err
		}
		return processor.ApplyOnchainWithdrawal(withdrawal)
	case "spotTrade":
		if entry.SpotTrade == nil {
			return fmt.Errorf("spotTrade entry missing payload")
		}
		return processor.ApplySpotTrade(entry.SpotTrade)
	case "offchainWithdrawal":
		if entry.OffchainWithdrawal == nil {
			return fmt.Errorf("offchainWithdrawal entry missing payload")
		}
		return processor.ApplyOffchainWithdrawal(entry.OffchainWithdrawal)
	case "orderCancellation":
		if entry.OrderCancellation == nil {
			return fmt.Errorf("orderCancellation entry missing payload")
		}
		return processor.ApplyCancellation(entry.OrderCancellation)
	case "internalTransfer":
		if entry.InternalTransfer == nil {
			return fmt.Errorf("internalTransfer entry missing payload")
		}
		return processor.ApplyTransfer(entry.InternalTransfer)
	default:
		return fmt.Errorf("unknown request kind %q", entry.Kind)
	}
}
