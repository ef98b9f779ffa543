package domain

// Source is the path a transaction candidate was observed on.
type Source string

const (
	SourcePush Source = "push"
	SourcePoll Source = "poll"
)

// String returns the string representation of Source.
func (s Source) String() string {
	return string(s)
}
