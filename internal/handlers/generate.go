package handlers

//go:generate mockgen -destination=mocks_test.go -package=handlers -self_package=github.com/sbilibin2017/gw-ledger/internal/handlers github.com/sbilibin2017/gw-ledger/internal/handlers TransactionProcessor,BalanceReader,Pinger
