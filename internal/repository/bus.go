package repository

// TopicEntries carries applied ledger mutations to the durable-apply worker.
const TopicEntries = "ledger.entries"

// TopicDebitCommands carries debit commands from internal callers.
const TopicDebitCommands = "commands.debit"

type MessageBus interface {
	Publish(topic string, data []byte) error
}
