// Package oracle simulates the external randomness coordinator. Consumers
// pay a fee in the fee token, get a request id back immediately and receive
// the random value later through a callback.
//
// The value is verifiable and unique per request id: the request id is
// hashed to a curve point H, the coordinator publishes Gamma = x*H together
// with a DLEQ proof that Gamma and its public key x*G share the same secret,
// and the value is SHA-256(Gamma). Re-proving the same id yields the same
// Gamma, so the coordinator cannot grind for a preferred outcome.
package oracle

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log"

	"TaxPool/internal/bank"
	"TaxPool/internal/model"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"go.dedis.ch/kyber/v4"
	"go.dedis.ch/kyber/v4/proof/dleq"
	"go.dedis.ch/kyber/v4/suites"
)

var suite suites.Suite = suites.MustFind("Ed25519")

const hashToPointDomain = "taxpool/vrf/v1:"

// Fulfillment is the payload delivered to a consumer.
type Fulfillment struct {
	RequestID  string
	Randomness *uint256.Int
	Gamma      kyber.Point
	Proof      *dleq.Proof
}

// Consumer receives randomness callbacks.
type Consumer interface {
	Address() model.Address
	FulfillRandomness(ctx context.Context, caller model.Address, f Fulfillment) error
}

type request struct {
	id       string
	consumer Consumer
}

// Coordinator accepts randomness requests and fulfills them asynchronously.
type Coordinator struct {
	addr     model.Address
	feeToken *bank.Bank
	keyID    string
	fee      *uint256.Int
	private  kyber.Scalar
	public   kyber.Point
	requests chan request
}

// NewCoordinator creates a coordinator with a fresh signing key.
func NewCoordinator(addr model.Address, feeToken *bank.Bank, keyID string, fee *uint256.Int, queueSize int) *Coordinator {
	if queueSize <= 0 {
		queueSize = 16
	}
	private, public := GenerateKey()
	return &Coordinator{
		addr:     addr,
		feeToken: feeToken,
		keyID:    keyID,
		fee:      model.Clone(fee),
		private:  private,
		public:   public,
		requests: make(chan request, queueSize),
	}
}

func (c *Coordinator) Address() model.Address { return c.addr }
func (c *Coordinator) KeyID() string          { return c.keyID }
func (c *Coordinator) Fee() *uint256.Int      { return model.Clone(c.fee) }

// PublicKey returns the key consumers verify proofs against.
func (c *Coordinator) PublicKey() kyber.Point { return c.public }

// RequestRandomness charges the fee and queues a request. It never blocks:
// a full queue is reported as ErrQueueFull.
func (c *Coordinator) RequestRandomness(_ context.Context, consumer Consumer, keyID string, fee *uint256.Int) (string, error) {
	if keyID != c.keyID {
		return "", fmt.Errorf("request randomness with key %q: %w", keyID, model.ErrUnknownKey)
	}
	if fee == nil || fee.Lt(c.fee) {
		return "", fmt.Errorf("request randomness: fee below %s: %w", c.fee.Dec(), model.ErrInvalidAmount)
	}
	if len(c.requests) == cap(c.requests) {
		return "", model.ErrQueueFull
	}
	if err := c.feeToken.Transfer(consumer.Address(), c.addr, fee); err != nil {
		return "", fmt.Errorf("charge oracle fee: %w", err)
	}

	id := uuid.NewString()
	select {
	case c.requests <- request{id: id, consumer: consumer}:
	default:
		// lost the race for the last slot; give the fee back
		if err := c.feeToken.Transfer(c.addr, consumer.Address(), fee); err != nil {
			log.Printf("[ERROR] refund oracle fee to %s: %v", consumer.Address(), err)
		}
		return "", model.ErrQueueFull
	}
	log.Printf("[INFO] oracle request %s queued for %s", id, consumer.Address())
	return id, nil
}

// Run fulfills queued requests until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	log.Println("[INFO] oracle coordinator started")
	for {
		select {
		case <-ctx.Done():
			log.Println("[INFO] oracle coordinator stopped")
			return
		case req := <-c.requests:
			c.fulfill(ctx, req)
		}
	}
}

// Drain fulfills every request currently queued and returns how many were
// processed. It is the synchronous counterpart of Run.
func (c *Coordinator) Drain(ctx context.Context) int {
	n := 0
	for {
		select {
		case req := <-c.requests:
			c.fulfill(ctx, req)
			n++
		default:
			return n
		}
	}
}

// Sign produces the fulfillment for requestID.
func (c *Coordinator) Sign(requestID string) (Fulfillment, error) {
	proof, _, gamma, err := dleq.NewDLEQProof(suite, suite.Point().Base(), hashToPoint(requestID), c.private)
	if err != nil {
		return Fulfillment{}, fmt.Errorf("prove request %s: %w", requestID, err)
	}
	return Fulfillment{
		RequestID:  requestID,
		Randomness: randomnessFromGamma(gamma),
		Gamma:      gamma,
		Proof:      proof,
	}, nil
}

func (c *Coordinator) fulfill(ctx context.Context, req request) {
	f, err := c.Sign(req.id)
	if err != nil {
		log.Printf("[ERROR] oracle %v", err)
		return
	}
	if err := req.consumer.FulfillRandomness(ctx, c.addr, f); err != nil {
		log.Printf("[ERROR] oracle callback %s to %s: %v", req.id, req.consumer.Address(), err)
		return
	}
	log.Printf("[INFO] oracle request %s fulfilled", req.id)
}

// Verify checks that f was produced by the holder of public's private key
// and that its randomness is the unique value for f.RequestID.
func Verify(public kyber.Point, f Fulfillment) error {
	if public == nil || f.Gamma == nil || f.Proof == nil || f.Proof.C == nil ||
		f.Proof.R == nil || f.Proof.VG == nil || f.Proof.VH == nil {
		return fmt.Errorf("incomplete proof for %s", f.RequestID)
	}
	// dleq.Verify checks the two equations but trusts C; recompute it
	if !challenge(public, f.Gamma, f.Proof.VG, f.Proof.VH).Equal(f.Proof.C) {
		return fmt.Errorf("verify proof for %s: challenge mismatch", f.RequestID)
	}
	if err := f.Proof.Verify(suite, suite.Point().Base(), hashToPoint(f.RequestID), public, f.Gamma); err != nil {
		return fmt.Errorf("verify proof for %s: %w", f.RequestID, err)
	}
	if f.Randomness == nil || !f.Randomness.Eq(randomnessFromGamma(f.Gamma)) {
		return fmt.Errorf("randomness for %s does not match proof", f.RequestID)
	}
	return nil
}

// GenerateKey returns a fresh key pair on the coordinator's suite.
func GenerateKey() (kyber.Scalar, kyber.Point) {
	private := suite.Scalar().Pick(suite.RandomStream())
	return private, suite.Point().Mul(private, nil)
}

// hashToPoint maps a request id to a point with unknown discrete log.
func hashToPoint(requestID string) kyber.Point {
	return suite.Point().Pick(suite.XOF([]byte(hashToPointDomain + requestID)))
}

// challenge mirrors the Fiat-Shamir challenge computed by dleq.NewDLEQProof.
func challenge(xG, xH, vG, vH kyber.Point) kyber.Scalar {
	h := suite.Hash()
	xG.MarshalTo(h)
	xH.MarshalTo(h)
	vG.MarshalTo(h)
	vH.MarshalTo(h)
	return suite.Scalar().Pick(suite.XOF(h.Sum(nil)))
}

func randomnessFromGamma(gamma kyber.Point) *uint256.Int {
	b, err := gamma.MarshalBinary()
	if err != nil {
		panic(fmt.Sprintf("marshal gamma: %v", err))
	}
	h := sha256.Sum256(b)
	return new(uint256.Int).SetBytes(h[:])
}
