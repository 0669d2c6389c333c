/*
Copyright © 2026 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/
package devserver

import (
	"fmt"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"

	"bennypowers.dev/sheaf/hot"
)

// EventSource is the CloudEvents source of every update event.
const EventSource = "sheaf/devserver"

// Update is the data of an artifact update event.
type Update struct {
	Entry   string   `json:"entry"`
	URL     string   `json:"url"`
	Modules []string `json:"modules,omitempty"`
}

// NewEvent wraps u in a CloudEvent of type hot.EventType.
func NewEvent(u Update) (cloudevents.Event, error) {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	event := cloudevents.NewEvent()
	event.SetID(id.String())
	event.SetType(hot.EventType)
	event.SetSource(EventSource)
	event.SetSubject(u.Entry)
	event.SetTime(time.Now())
	if err := event.SetData(cloudevents.ApplicationJSON, u); err != nil {
		return event, fmt.Errorf("setting event data: %w", err)
	}
	return event, nil
}
