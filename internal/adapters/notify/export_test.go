package notify

// NewKafkaPublisherWithWriter inyecta un writer falso.
func NewKafkaPublisherWithWriter(w messageWriter, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: w, topic: topic}
}
