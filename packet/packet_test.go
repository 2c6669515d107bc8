package packet

import (
	"bytes"
	"io"
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Packet", func() {
	It("should round trip every payload length", func() {
		rng := rand.New(rand.NewSource(1))

		for length := 0; length <= PayloadMax; length++ {
			payload := make([]byte, length)
			rng.Read(payload)

			p := &Packet{
				Src:     uint8(rng.Intn(256)),
				Dst:     uint8(rng.Intn(256)),
				Type:    Type(rng.Intn(7)),
				Payload: payload,
			}

			frame, err := p.Encode()
			Expect(err).NotTo(HaveOccurred())
			Expect(frame).To(HaveLen(HeaderSize + length))

			decoded, err := Decode(frame)
			Expect(err).NotTo(HaveOccurred())
			Expect(decoded).To(Equal(p))
		}
	})

	It("should lay out the header in wire order", func() {
		p := &Packet{Src: 1, Dst: 2, Type: TypePingReply, Payload: []byte("ab")}

		frame, err := p.Encode()

		Expect(err).NotTo(HaveOccurred())
		Expect(frame).To(Equal([]byte{1, 2, 1, 2, 'a', 'b'}))
	})

	It("should refuse to encode an oversized payload", func() {
		p := &Packet{Payload: make([]byte, PayloadMax+1)}

		_, err := p.Encode()

		Expect(err).To(MatchError(ErrPayloadTooLong))
		Expect(err).To(MatchError(ErrProtocol))
	})

	It("should reject inconsistent frames", func() {
		_, err := Decode([]byte{1, 2})
		Expect(err).To(MatchError(ErrShortFrame))

		_, err = Decode([]byte{1, 2, 0, PayloadMax + 1})
		Expect(err).To(MatchError(ErrPayloadTooLong))

		_, err = Decode([]byte{1, 2, 0, 3, 'a'})
		Expect(err).To(MatchError(ErrFrameLength))

		_, err = Decode([]byte{1, 2, 0, 0, 'a'})
		Expect(err).To(MatchError(ErrFrameLength))
	})

	It("should report the frame length from a partial buffer", func() {
		n, err := FrameLen([]byte{1, 2})
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(0))

		n, err = FrameLen([]byte{1, 2, 0, 10})
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(14))

		_, err = FrameLen([]byte{1, 2, 0, 200})
		Expect(err).To(MatchError(ErrProtocol))
	})

	It("should read frames back to back from a stream", func() {
		a, _ := (&Packet{Src: 1, Dst: 2, Payload: []byte("hello")}).Encode()
		b, _ := (&Packet{Src: 3, Dst: 4}).Encode()
		r := bytes.NewReader(append(a, b...))

		f1, err := ReadFrame(r)
		Expect(err).NotTo(HaveOccurred())
		Expect(f1).To(Equal(a))

		f2, err := ReadFrame(r)
		Expect(err).NotTo(HaveOccurred())
		Expect(f2).To(Equal(b))

		_, err = ReadFrame(r)
		Expect(err).To(MatchError(io.EOF))
	})

	It("should report a truncated stream", func() {
		r := bytes.NewReader([]byte{1, 2, 0, 5, 'a'})

		_, err := ReadFrame(r)

		Expect(err).To(MatchError(io.ErrUnexpectedEOF))
	})

	It("should clone the payload", func() {
		p := &Packet{Payload: []byte("x")}

		c := p.Clone()
		c.Payload[0] = 'y'

		Expect(p.Payload).To(Equal([]byte("x")))
	})
})
