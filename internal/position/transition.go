package position

import "github.com/shopspring/decimal"

// Transition 是相邻两次仓位快照之间的状态变化。
type Transition int

const (
	// TransitionUpdate 包括加仓、重复推送以及不经过空仓的方向翻转，只更新字段不通知。
	TransitionUpdate Transition = iota
	TransitionOpened
	TransitionPartial
	TransitionClosed
)

func (t Transition) String() string {
	switch t {
	case TransitionOpened:
		return "opened"
	case TransitionPartial:
		return "partial"
	case TransitionClosed:
		return "closed"
	default:
		return "update"
	}
}

// Classify 仅依据前后仓位数量的绝对值判断状态变化，与方向无关。
func Classify(prevSize, newSize decimal.Decimal) Transition {
	switch {
	case prevSize.IsZero() && !newSize.IsZero():
		return TransitionOpened
	case !prevSize.IsZero() && newSize.IsZero():
		return TransitionClosed
	case !prevSize.IsZero() && newSize.Abs().LessThan(prevSize.Abs()):
		return TransitionPartial
	default:
		return TransitionUpdate
	}
}
