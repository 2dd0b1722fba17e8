package events

import "fmt"

type TopicBuilder struct {
	domainID  string
	channelID string
}

func NewTopicBuilder(domainID, channelID string) *TopicBuilder {
	return &TopicBuilder{
		domainID:  domainID,
		channelID: channelID,
	}
}

func (tb *TopicBuilder) BaseTopic() string {
	return fmt.Sprintf("m/%s/c/%s", tb.domainID, tb.channelID)
}

func (tb *TopicBuilder) RoundStartedTopic() string {
	return tb.BaseTopic() + "/fl/rounds/started"
}

func (tb *TopicBuilder) RoundCompletedTopic() string {
	return tb.BaseTopic() + "/fl/rounds/completed"
}

func (tb *TopicBuilder) EvaluationTopic() string {
	return tb.BaseTopic() + "/fl/evaluations"
}

func (tb *TopicBuilder) RunTopic() string {
	return tb.BaseTopic() + "/fl/run"
}

// CoordinatorStatusTopic carries the coordinator's last will.
func (tb *TopicBuilder) CoordinatorStatusTopic() string {
	return tb.BaseTopic() + "/fl/coordinator/status"
}

// AllTopic matches every federated learning topic.
func (tb *TopicBuilder) AllTopic() string {
	return tb.BaseTopic() + "/fl/#"
}
