package crawl

// Stage is the phase a build is in.
type Stage uint8

const (
	StageCrawl  Stage = iota + 1 // discovery events are arriving
	StageSettle                  // bundler failed, waiting for the quiet period
	StageAssign                  // computing the final map
	StageFlush                   // writing artifacts
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageCrawl:
		return "crawling"
	case StageSettle:
		return "settling"
	case StageAssign:
		return "assigning"
	case StageFlush:
		return "writing"
	case StageDone:
		return "done"
	default:
		return ""
	}
}

// Event is a progress notification. Counters are totals so far.
type Event struct {
	Stage       Stage
	Module      string
	Discovered  int
	Transformed int
	Assigned    int
	Total       int // modules to assign, set from StageAssign on
	Err         error
}

// ProgressSink consumes progress events.
type ProgressSink interface {
	OnEvent(Event)
}

// ChannelSink forwards events into a channel.
type ChannelSink struct {
	Ch chan<- Event
}

func (s ChannelSink) OnEvent(evt Event) {
	if s.Ch == nil {
		return
	}
	s.Ch <- evt
}
