package page

import "github.com/Miraines/MoonyAndStarry/users-service/internal/domain/auth/model"

// Info describes page number of size items out of total. Pages are 1-based.
func Info(total int64, number, size int) model.PageInfo {
	last := int(total / int64(size))
	if total%int64(size) != 0 {
		last++
	}

	info := model.PageInfo{
		Total: total,
		Page:  number,
		Size:  size,
		First: 1,
		Last:  last,
	}
	if prev := number - 1; prev > 0 {
		info.Previous = &prev
	}
	if number < last {
		next := number + 1
		info.Next = &next
	}
	return info
}
