package handler

import (
	"errors"
	"regexp"
	"slices"

	"github.com/goevery/seatcast/internal/broadcaster"
	"github.com/goevery/seatcast/internal/ierr"
)

type TopicValidator struct {
	topicRegex  *regexp.Regexp
	knownTopics []string
}

func NewTopicValidator() *TopicValidator {
	return &TopicValidator{
		topicRegex:  regexp.MustCompile(`^([\w-]+:?)*\w$`),
		knownTopics: []string{broadcaster.TopicCourseUpdates},
	}
}

func (v *TopicValidator) Validate(topic string) error {
	valid := v.topicRegex.MatchString(topic)
	if !valid {
		return ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("invalid topic"))
	}

	if !slices.Contains(v.knownTopics, topic) {
		return ierr.New(ierr.ErrorCodeNotFound, errors.New("unknown topic: "+topic))
	}

	return nil
}
