package pipeline

import (
	"fmt"
	"path"

	"fsoi/internal/request"
)

// InputObject describes one source data file a request needs.
type InputObject struct {
	Key     string
	Center  string
	Norm    string
	Date    string
	Cycle   string
	Fetched bool
}

// MissingMessage is the client-facing message for an object that could not be fetched.
func (o InputObject) MissingMessage() string {
	return fmt.Sprintf("Missing data: %s %s %sZ", o.Center, o.Date, o.Cycle)
}

// RemoteKey returns the object key inside the data bucket.
func (o InputObject) RemoteKey(prefix string) string {
	if prefix == "" {
		return o.Key
	}
	return path.Join(prefix, o.Key)
}

// Inputs enumerates the objects for req ordered by date, then center, then cycle.
func Inputs(req *request.Request) ([]InputObject, error) {
	dates, err := request.DatesInRange(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}
	objects := make([]InputObject, 0, len(dates)*len(req.Centers)*len(req.Cycles))
	for _, date := range dates {
		for _, center := range req.Centers {
			for _, cycle := range req.Cycles {
				objects = append(objects, InputObject{
					Key:    fmt.Sprintf("%s/%s.%s.%s%s.h5", center, center, req.Norm, date, cycle),
					Center: center,
					Norm:   req.Norm,
					Date:   date,
					Cycle:  cycle,
				})
			}
		}
	}
	return objects, nil
}

// FetchedByCenter counts fetched objects per center, listing every center
// that appears in objects in first-seen order.
func FetchedByCenter(objects []InputObject) ([]string, map[string]int) {
	order := make([]string, 0)
	counts := make(map[string]int)
	for _, obj := range objects {
		if _, seen := counts[obj.Center]; !seen {
			order = append(order, obj.Center)
			counts[obj.Center] = 0
		}
		if obj.Fetched {
			counts[obj.Center]++
		}
	}
	return order, counts
}
