package services

//go:generate mockgen -destination=mocks_test.go -package=services -self_package=github.com/sbilibin2017/gw-ledger/internal/services github.com/sbilibin2017/gw-ledger/internal/services ReservationStore,TxRunner,LedgerWriter,Reserver,OutcomeCache,KafkaWriter,AccountStore
