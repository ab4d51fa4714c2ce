package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestClassify(t *testing.T) {
	Convey("Given response status codes", t, func() {
		cases := map[int]string{
			http.StatusBadRequest:          "client_error",
			http.StatusNotFound:            "not_found",
			http.StatusTooManyRequests:     "rate_limit",
			http.StatusInternalServerError: "server_error",
			http.StatusGatewayTimeout:      "timeout",
		}
		for code, kind := range cases {
			class, failed := classify(code)
			So(failed, ShouldBeTrue)
			So(class.kind, ShouldEqual, kind)
		}

		_, failed := classify(http.StatusOK)
		So(failed, ShouldBeFalse)
	})
}

func TestStatusRecorder(t *testing.T) {
	Convey("Given a status recorder", t, func() {
		rec := &statusRecorder{ResponseWriter: httptest.NewRecorder()}

		Convey("A body write without a header counts as 200", func() {
			_, err := rec.Write([]byte("ok"))
			So(err, ShouldBeNil)
			So(rec.status(), ShouldEqual, http.StatusOK)
		})

		Convey("The first explicit status wins", func() {
			rec.WriteHeader(http.StatusNotFound)
			rec.WriteHeader(http.StatusInternalServerError)
			So(rec.status(), ShouldEqual, http.StatusNotFound)
		})
	})
}
