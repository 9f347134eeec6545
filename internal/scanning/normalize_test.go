package scanning

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
	"image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Normalizer", func() {
	var (
		normalizer *Normalizer
		raw        RawImage
		result     *NormalizedImage
		err        error
	)

	BeforeEach(func() {
		normalizer = NewNormalizer()
	})

	JustBeforeEach(func() {
		result, err = normalizer.Normalize(raw)
	})

	When("the input is a PNG wider than the target", func() {
		BeforeEach(func() {
			raw = RawImage{Data: testPNG(1600, 1000), ContentType: "image/png"}
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should scale to the target width keeping the aspect ratio", func() {
			Expect(result.Width).To(Equal(800))
			Expect(result.Height).To(Equal(500))
		})

		It("should produce a single-channel grey PNG", func() {
			img, decodeErr := png.Decode(bytes.NewReader(result.Data))
			Expect(decodeErr).NotTo(HaveOccurred())
			Expect(img).To(BeAssignableToTypeOf(&image.Gray{}))
			Expect(img.Bounds().Dx()).To(Equal(800))
			Expect(img.Bounds().Dy()).To(Equal(500))
		})

		It("should push dark and light areas to the extremes", func() {
			img, decodeErr := png.Decode(bytes.NewReader(result.Data))
			Expect(decodeErr).NotTo(HaveOccurred())
			gray := img.(*image.Gray)
			Expect(gray.GrayAt(100, 250).Y).To(BeNumerically("<", 10))
			Expect(gray.GrayAt(700, 250).Y).To(BeNumerically(">", 245))
		})
	})

	When("the input is a small JPEG", func() {
		BeforeEach(func() {
			var buf bytes.Buffer
			Expect(jpeg.Encode(&buf, testImage(200, 100), nil)).To(Succeed())
			raw = RawImage{Data: buf.Bytes(), ContentType: "image/jpeg"}
		})

		It("should upscale to the target width", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Width).To(Equal(800))
			Expect(result.Height).To(Equal(400))
		})
	})

	When("the content type is missing or carries parameters", func() {
		BeforeEach(func() {
			raw = RawImage{Data: testPNG(400, 400), ContentType: "Image/PNG; charset=binary"}
		})

		It("should sniff the format from the bytes", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Width).To(Equal(800))
			Expect(result.Height).To(Equal(800))
		})
	})

	When("a custom width is configured", func() {
		BeforeEach(func() {
			normalizer = &Normalizer{TargetWidth: 300, Contrast: 20}
			raw = RawImage{Data: testPNG(600, 200), ContentType: "image/png"}
		})

		It("should use it", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Width).To(Equal(300))
			Expect(result.Height).To(Equal(100))
		})
	})

	When("the bytes are not an image", func() {
		BeforeEach(func() {
			raw = RawImage{Data: []byte("definitely not an image"), ContentType: "image/jpeg"}
		})

		It("should return an ImageDecodeError", func() {
			var decodeErr *ImageDecodeError
			Expect(errors.As(err, &decodeErr)).To(BeTrue())
			Expect(decodeErr.ContentType).To(Equal("image/jpeg"))
			Expect(result).To(BeNil())
		})
	})

	When("the input is empty", func() {
		BeforeEach(func() {
			raw = RawImage{ContentType: "image/png"}
		})

		It("should return an ImageDecodeError", func() {
			var decodeErr *ImageDecodeError
			Expect(errors.As(err, &decodeErr)).To(BeTrue())
		})
	})
})
