package flowstate_test

import (
	"context"
	"fmt"
	"log"

	"github.com/petrijr/flowstate"
)

// Example_backButton walks a booking flow forward, then resumes an older
// snapshot the way a browser's back button would.
func Example_backButton() {
	ctx := context.Background()

	x, err := flowstate.NewInMemoryExecutor(flowstate.ExecutorConfig{
		ConversationIDs: &flowstate.SequenceGenerator{},
	})
	if err != nil {
		log.Fatal(err)
	}
	flowstate.New("booking").
		View("enterDetails").On("next", "review").
		View("review").On("back", "enterDetails").On("confirm", "booked").
		End("booked").
		MustRegister(x)

	sessions := flowstate.NewSessionStore(flowstate.SessionConfig{})
	request := func(eventID string) flowstate.ExternalContext {
		ext := sessions.NewContext("alice", nil)
		if eventID != "" {
			ext.RequestParameters().Set(flowstate.EventIDParameter, eventID)
		}
		return ext
	}

	first, err := flowstate.Launch(ctx, x, "booking", nil, request(""))
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(first.Key, first.StateID)

	second, err := flowstate.Resume(ctx, x, first.Key, request("next"))
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(second.Key, second.StateID)

	// Back to the first page, submitted again.
	again, err := flowstate.Resume(ctx, x, first.Key, request("next"))
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(again.Key, again.StateID)

	done, err := flowstate.Resume(ctx, x, again.Key, request("confirm"))
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(done.Ended, done.Outcome)

	// Output:
	// _c1_k1 enterDetails
	// _c1_k2 review
	// _c1_k3 review
	// true booked
}
